package reporting

import (
	"time"

	"rtcbridge/pkg/logging"
)

// AnomalyKind classifies the failure being captured so downstream sinks can
// group or filter without parsing message text.
type AnomalyKind string

const (
	KindProcessCrash AnomalyKind = "ProcessCrash"
	KindRelayParse   AnomalyKind = "RelayParse"
	KindRelayDrop    AnomalyKind = "RelayDrop"
	KindGeneral      AnomalyKind = "General"
)

// String makes AnomalyKind satisfy the fmt.Stringer interface.
func (k AnomalyKind) String() string {
	return string(k)
}

// Anomaly is a captured non-fatal failure. Steady-state failures (crashes,
// parse errors, relay drops) are reported through this struct rather than
// propagated across goroutine boundaries.
type Anomaly struct {
	Timestamp time.Time
	Kind      AnomalyKind
	// Source identifies the component that observed the failure,
	// e.g. "GatewaySupervisor" or "RelayLink".
	Source  string
	Err     error
	Context map[string]string
}

// Reporter is the error-reporting collaborator. Implementations must be
// goroutine-safe; Capture is called from monitor and relay goroutines.
type Reporter interface {
	Capture(anomaly Anomaly)
}

// LogReporter writes captured anomalies to structured logging. It is the
// default sink when no external error-tracking collaborator is attached.
type LogReporter struct{}

// NewLogReporter creates a log-backed anomaly reporter.
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

// Capture records the anomaly via the logging package.
func (r *LogReporter) Capture(anomaly Anomaly) {
	if anomaly.Timestamp.IsZero() {
		anomaly.Timestamp = time.Now()
	}
	logging.Error(anomaly.Source, anomaly.Err, "Captured anomaly kind=%s context=%v", anomaly.Kind, anomaly.Context)
}
