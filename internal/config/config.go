// Package config provides configuration types for mcpgate.
//
// Configuration is file-based (YAML) with environment variable overrides.
// The schema is intentionally small: an HTTP listener section and an
// upstream section describing the MCP server subprocess to launch.
package config

// Config is the top-level configuration for mcpgate.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Upstream configures the MCP server subprocess.
	// Either a servers file reference or an inline command must be specified.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
}

// ServerConfig configures the HTTP listener and request handling.
type ServerConfig struct {
	// HTTPAddr is the listen address, e.g. "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"required,hostname_port"`

	// LogLevel controls log verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// CallTimeout is the default per-request upstream timeout (e.g. "30s").
	CallTimeout string `yaml:"call_timeout" mapstructure:"call_timeout" validate:"omitempty,duration"`

	// ShutdownTimeout bounds graceful HTTP shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`

	// AllowedOrigins restricts browser access via the Origin header.
	// Empty means non-browser clients only: any request carrying an
	// Origin header is rejected.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// UpstreamConfig identifies the MCP server subprocess to supervise.
//
// Two configuration styles are supported, mutually exclusive:
//
//   - servers_file + server_name: read the command from a standard
//     mcpServers JSON file (the format used by MCP client apps).
//   - command + args: specify the command inline.
type UpstreamConfig struct {
	// ServersFile is the path to an mcpServers JSON configuration file.
	ServersFile string `yaml:"servers_file" mapstructure:"servers_file"`

	// ServerName selects the entry in ServersFile to launch.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`

	// Command is the inline subprocess command (alternative to ServersFile).
	Command string `yaml:"command" mapstructure:"command"`

	// Args are the inline subprocess arguments.
	Args []string `yaml:"args" mapstructure:"args"`

	// Cwd is the subprocess working directory. Empty means inherit.
	Cwd string `yaml:"cwd" mapstructure:"cwd"`

	// Env holds extra environment variables for the subprocess.
	// They are appended to the parent environment.
	Env map[string]string `yaml:"env" mapstructure:"env"`

	// Restart relaunches the subprocess when it exits unexpectedly.
	Restart bool `yaml:"restart" mapstructure:"restart"`

	// RestartBackoff is the delay before a relaunch (e.g. "1s").
	RestartBackoff string `yaml:"restart_backoff" mapstructure:"restart_backoff" validate:"omitempty,duration"`
}

// SetDefaults applies default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only. Users who need network access must
	// explicitly set http_addr: ":8080" or "0.0.0.0:8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.CallTimeout == "" {
		c.Server.CallTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Upstream.RestartBackoff == "" {
		c.Upstream.RestartBackoff = "1s"
	}
}
