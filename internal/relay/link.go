// Package relay maintains the duplex conduit between the gateway's local
// control endpoint and the upstream sink. Payloads pass through opaquely; the
// relay never interprets signaling beyond checking that inbound frames are
// well-formed JSON before wrapping them.
package relay

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"rtcbridge/internal/reporting"
	"rtcbridge/internal/upstream"
	"rtcbridge/pkg/logging"
)

const subsystem = "RelayLink"

// Subprotocol is the identifier the gateway's control endpoint expects during
// the websocket handshake.
const Subprotocol = "janus-protocol"

// GatewayHost is where the supervised gateway listens for control
// connections.
const GatewayHost = "127.0.0.1"

const connectTimeout = 30 * time.Second

// State is the relay connection state.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateClosing      State = "Closing"
)

// CloseCallback notifies the owner that the link dropped without a requested
// shutdown. The reconnect decision belongs to the owner.
type CloseCallback func()

// Link is a reconnectable websocket conduit to the gateway control endpoint.
// It is owned by a single goroutine; only Send and Close are safe to call
// concurrently with the message pump.
type Link struct {
	endpoint string
	sink     upstream.Sink
	reporter reporting.Reporter
	onClose  CloseCallback

	// retryPolicy paces reconnect attempts so a flapping gateway does not
	// hot-loop the owner. Shared policy shape with the host integration's
	// upstream connection.
	retryPolicy backoff.BackOff

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	closing bool
}

// NewLink creates a relay link to the control endpoint at host:port. Nothing
// is dialed until Connect.
func NewLink(host string, port int, sink upstream.Sink, reporter reporting.Reporter, onClose CloseCallback) *Link {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.MaxInterval = 60 * time.Second
	policy.MaxElapsedTime = 0 // retry indefinitely; the owner decides when to stop

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/"}
	return &Link{
		endpoint:    u.String(),
		sink:        sink,
		reporter:    reporter,
		onClose:     onClose,
		retryPolicy: policy,
		state:       StateDisconnected,
	}
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether the link currently has a live connection.
func (l *Link) Connected() bool {
	return l.State() == StateConnected
}

// NextRetryDelay returns how long the owner should wait before the next
// Connect attempt after a failure or drop.
func (l *Link) NextRetryDelay() time.Duration {
	return l.retryPolicy.NextBackOff()
}

// Connect dials the gateway control endpoint with a bounded handshake
// timeout and starts the inbound message pump. On success the retry policy
// resets.
func (l *Link) Connect() error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return fmt.Errorf("relay link is closing")
	}
	if l.state == StateConnected || l.state == StateConnecting {
		l.mu.Unlock()
		return nil
	}
	l.state = StateConnecting
	l.mu.Unlock()

	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: connectTimeout,
	}
	conn, _, err := dialer.Dial(l.endpoint, nil)
	if err != nil {
		l.mu.Lock()
		l.state = StateDisconnected
		l.mu.Unlock()
		return fmt.Errorf("dialing gateway control endpoint %s: %w", l.endpoint, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.state = StateConnected
	l.mu.Unlock()

	l.retryPolicy.Reset()
	logging.Info(subsystem, "Connected to gateway control endpoint %s", l.endpoint)

	go l.readPump(conn)
	return nil
}

// Send forwards a signaling message to the gateway. When the link is not
// connected the message is silently dropped: signaling is best-effort and
// retransmission is a higher-layer concern.
func (l *Link) Send(message []byte) {
	l.mu.Lock()
	conn := l.conn
	connected := l.state == StateConnected
	l.mu.Unlock()

	if !connected || conn == nil {
		logging.Debug(subsystem, "Dropping outbound message, link not connected")
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		logging.Warn(subsystem, "Failed to write to gateway control endpoint: %v", err)
	}
}

// Close shuts the link down. Safe to call repeatedly; after Close the drop is
// classified as requested and the owner's close callback is not invoked.
func (l *Link) Close() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	l.state = StateClosing
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// readPump is the message pump goroutine: its suspension points are
// receive-next-message and sink delivery. It exits when the connection
// closes from either end.
func (l *Link) readPump(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			l.handleClosed(err)
			return
		}
		l.forward(raw)
	}
}

// forward validates that the inbound frame is JSON, wraps it in an
// origin-tagged envelope and delivers it upstream. A malformed frame is
// reported and swallowed; the pump continues.
func (l *Link) forward(raw []byte) {
	if !json.Valid(raw) {
		l.reporter.Capture(reporting.Anomaly{
			Kind:   reporting.KindRelayParse,
			Source: subsystem,
			Err:    fmt.Errorf("malformed inbound gateway message (%d bytes)", len(raw)),
		})
		return
	}
	logging.Debug(subsystem, "Relaying gateway message upstream (%d bytes)", len(raw))
	l.sink.Deliver(upstream.NewGatewayEnvelope(raw))
}

// handleClosed transitions to Disconnected and, unless a shutdown was
// requested, notifies the owner so it can decide whether to reconnect.
func (l *Link) handleClosed(cause error) {
	l.mu.Lock()
	wasClosing := l.closing
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.state = StateDisconnected
	l.mu.Unlock()

	if wasClosing {
		logging.Debug(subsystem, "Gateway control connection closed after shutdown request")
		return
	}

	logging.Warn(subsystem, "Gateway control connection closed unexpectedly: %v", cause)
	l.reporter.Capture(reporting.Anomaly{
		Kind:   reporting.KindRelayDrop,
		Source: subsystem,
		Err:    cause,
	})
	if l.onClose != nil {
		l.onClose()
	}
}
