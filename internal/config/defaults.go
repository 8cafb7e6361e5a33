package config

// Default port allocation parameters. These match the values the gateway
// deployment has used historically; lock files written with them remain
// compatible across versions.
const (
	DefaultPortFloor  = 17730
	DefaultPortGap    = 20
	DefaultPortSlots  = 10
	DefaultPortProbes = 4
	DefaultLockDir    = "/tmp"
)

// DefaultStunServer is the NAT-traversal helper passed to the gateway.
const DefaultStunServer = "stun.l.google.com:19302"

// GetDefaultConfig returns the built-in configuration, before any user or
// project overlay is applied.
func GetDefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			StunServer: DefaultStunServer,
		},
		Ports: PortsConfig{
			Floor:   DefaultPortFloor,
			Gap:     DefaultPortGap,
			Slots:   DefaultPortSlots,
			Probes:  DefaultPortProbes,
			LockDir: DefaultLockDir,
		},
		LogLevel: "info",
	}
}
