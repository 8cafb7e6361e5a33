package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rtcbridge/internal/config"
	"rtcbridge/internal/instance"
	"rtcbridge/internal/locks"
	"rtcbridge/internal/ports"
	"rtcbridge/internal/relay"
	"rtcbridge/internal/reporting"
	"rtcbridge/internal/supervisor"
	"rtcbridge/internal/upstream"
	"rtcbridge/pkg/logging"
)

// serveDebug enables verbose logging, including the gateway's own output lines.
var serveDebug bool

// serveGatewayBin overrides the configured gateway executable path.
var serveGatewayBin string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Allocate ports, start the gateway and relay its signaling",
		Long: `Starts the RTC gateway for this host instance and keeps it supervised
until interrupted.

The sequence is: derive the instance identity, allocate this instance's port
block (reclaiming any stale locks on the way), spawn the gateway bound to it,
wait until its control endpoint accepts connections, then relay signaling
between the gateway and the upstream channel. Ctrl+C shuts the relay and the
gateway down and releases the port lock.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&serveGatewayBin, "gateway-bin", "", "Path to the gateway executable (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if serveGatewayBin != "" {
		cfg.Gateway.Executable = serveGatewayBin
	}
	if cfg.Gateway.Executable == "" {
		return fmt.Errorf("no gateway executable configured; set gateway.executable or pass --gateway-bin")
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	identity := instance.Derive()
	logging.Info("Serve", "Instance identity: %q", identity)

	store := locks.NewFileStore(cfg.Ports.LockDir)
	allocator := ports.NewAllocator(ports.Params{
		Floor:  cfg.Ports.Floor,
		Gap:    cfg.Ports.Gap,
		Slots:  cfg.Ports.Slots,
		Probes: cfg.Ports.Probes,
	}, store, locks.NewUnixLiveness())

	// Ports are computed exactly once here and stay immutable for the
	// lifetime of the process.
	assignment := allocator.Allocate(identity)
	logging.Info("Serve", "Allocated gateway ports %d/%d", assignment.BasePort, assignment.ControlPort)

	reporter := reporting.NewLogReporter()
	sup := supervisor.New(supervisor.Options{
		Executable:  cfg.Gateway.Executable,
		LibraryPath: cfg.Gateway.LibraryPath,
		ConfigDir:   cfg.Gateway.ConfigDir,
		StunServer:  cfg.Gateway.StunServer,
	}, store, reporter)

	if err := sup.Start(assignment); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	sink := upstream.NewChannelSink(64)
	done := make(chan struct{})

	var link *relay.Link
	link = relay.NewLink(relay.GatewayHost, assignment.BasePort, sink, reporter, func() {
		// The gateway dropped us without a shutdown request. Reconnect,
		// paced by the link's shared backoff policy, as long as the
		// gateway is still supervised.
		go func() {
			for sup.GetState() == supervisor.StateRunning {
				time.Sleep(link.NextRetryDelay())
				if err := link.Connect(); err == nil {
					return
				}
			}
		}()
	})
	sup.AttachRelay(link)

	if err := link.Connect(); err != nil {
		sup.Shutdown()
		return fmt.Errorf("connecting relay: %w", err)
	}

	// Drain the upstream sink. The real host integration consumes this
	// stream; standalone serve just logs deliveries.
	go func() {
		for envelope := range sink.Envelopes() {
			logging.Debug("Upstream", "Envelope from %s (%d bytes)", envelope.Origin, len(envelope.Payload))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("Serve", "Shutting down")
		sup.Shutdown()
		close(done)
	}()

	<-done
	return nil
}
