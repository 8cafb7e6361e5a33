package config

// PortsConfig controls the deterministic port allocation for this instance.
// Fields default to the values the gateway ecosystem has always used; override
// them only when every instance on the machine is overridden consistently.
type PortsConfig struct {
	// Floor is the lowest base port any instance may be assigned.
	Floor int `yaml:"floor,omitempty"`
	// Gap is the number of ports reserved per instance (signaling, admin,
	// media and data channels all live within one gap).
	Gap int `yaml:"gap,omitempty"`
	// Slots is the number of distinct instance buckets.
	Slots int `yaml:"slots,omitempty"`
	// Probes is how many further candidates are tried on a live collision.
	Probes int `yaml:"probes,omitempty"`
	// LockDir is where per-port pid lock files are written.
	LockDir string `yaml:"lockDir,omitempty"`
}

// GatewayConfig describes the external RTC gateway process under supervision.
type GatewayConfig struct {
	// Executable is the path to the gateway binary.
	Executable string `yaml:"executable,omitempty"`
	// LibraryPath, when set, is prepended to LD_LIBRARY_PATH for the child.
	LibraryPath string `yaml:"libraryPath,omitempty"`
	// ConfigDir is the runtime configuration folder passed to the gateway.
	// Materializing its contents is the config-builder collaborator's job.
	ConfigDir string `yaml:"configDir,omitempty"`
	// StunServer is the NAT-traversal helper endpoint handed to the gateway.
	StunServer string `yaml:"stunServer,omitempty"`
}

// Config is the full rtcbridge configuration.
type Config struct {
	Gateway  GatewayConfig `yaml:"gateway,omitempty"`
	Ports    PortsConfig   `yaml:"ports,omitempty"`
	LogLevel string        `yaml:"logLevel,omitempty"`
}
