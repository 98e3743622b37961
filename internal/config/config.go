package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServiceConfig holds service-level settings loaded from graphkb.yml.
type ServiceConfig struct {
	// DBPath is the on-disk database directory; empty means in-memory.
	DBPath string `yaml:"dbPath,omitempty"`
	// SchemaPath points at a schema definitions file overriding the
	// built-in defaults.
	SchemaPath string `yaml:"schemaPath,omitempty"`
	// Lenient stores undeclared properties instead of rejecting them.
	Lenient bool `yaml:"lenient,omitempty"`
	// AllowStubNodes lets edges auto-create missing endpoints.
	AllowStubNodes bool `yaml:"allowStubNodes,omitempty"`

	ListenAddr    string `yaml:"listenAddr,omitempty"`
	MCPAddr       string `yaml:"mcpAddr,omitempty"`
	MetricsAddr   string `yaml:"metricsAddr,omitempty"`
	QueryTimeout  int    `yaml:"queryTimeoutSeconds,omitempty"`
	DefaultLimit  int64  `yaml:"defaultRowLimit,omitempty"`
	MaxLimit      int64  `yaml:"maxRowLimit,omitempty"`
	CommitRetries int    `yaml:"commitRetries,omitempty"`
}

// Load attempts to read graphkb.yml or graphkb.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*ServiceConfig, error) {
	for _, name := range []string{"graphkb.yml", "graphkb.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ServiceConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return &ServiceConfig{}, nil
}
