package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"rtcbridge/internal/config"
	"rtcbridge/internal/instance"
	"rtcbridge/internal/locks"
	"rtcbridge/internal/ports"
)

// newPortsCmd prints the port assignment this instance would receive, without
// spawning anything. Useful when diagnosing collisions between instances.
func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "Show the gateway port assignment for this instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			identity := instance.Derive()
			store := locks.NewFileStore(cfg.Ports.LockDir)
			allocator := ports.NewAllocator(ports.Params{
				Floor:  cfg.Ports.Floor,
				Gap:    cfg.Ports.Gap,
				Slots:  cfg.Ports.Slots,
				Probes: cfg.Ports.Probes,
			}, store, locks.NewUnixLiveness())

			assignment := allocator.Allocate(identity)

			fmt.Printf("identity:     %s\n", identity)
			fmt.Printf("slot:         %d\n", allocator.Slot(identity))
			fmt.Printf("base port:    %d\n", assignment.BasePort)
			fmt.Printf("control port: %d\n", assignment.ControlPort)
			return nil
		},
	}
}
