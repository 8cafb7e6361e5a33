// Package config loads the rtcbridge configuration by layering built-in
// defaults, a user-level config file, and a project-level config file.
package config
