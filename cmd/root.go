package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtcbridge",
	Short: "Supervise the RTC gateway for a hosted application instance",
	Long: `rtcbridge co-locates the real-time-communication gateway with one host
application instance. It deterministically allocates the gateway's port block
so that independent instances on the same machine do not collide, supervises
the gateway process, and relays signaling between the gateway's local control
channel and the host's upstream channel.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. a gateway that fails to start)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rtcbridge version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPortsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
