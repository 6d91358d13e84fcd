package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"caseline/internal/domain"
)

// Config models caseline.yml.
type Config struct {
	Scope struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"scope"`
	SLA struct {
		Hours map[string]int `yaml:"hours"`
	} `yaml:"sla"`
	Actors map[string]Actor `yaml:"actors"`
}

type Actor struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with cl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scope.ID == "" {
		return fmt.Errorf("config.scope.id is required")
	}
	if c.Scope.Kind != "client-matter" {
		return fmt.Errorf("config.scope.kind must be 'client-matter'")
	}
	for severity, hours := range c.SLA.Hours {
		switch domain.Severity(severity) {
		case domain.SeverityNormal, domain.SeverityHigh, domain.SeverityUrgent:
		default:
			return fmt.Errorf("config.sla.hours has unknown severity %s", severity)
		}
		if hours <= 0 {
			return fmt.Errorf("sla hours for severity %s must be positive", severity)
		}
	}
	for actorID, actor := range c.Actors {
		if actorID == "" {
			return fmt.Errorf("config.actors contains empty actor id")
		}
		switch domain.Role(actor.Role) {
		case domain.RoleAttorney, domain.RoleStaff, domain.RoleClient:
		default:
			return fmt.Errorf("actor %s has unknown role %s", actorID, actor.Role)
		}
	}
	return nil
}

// SLAHours returns the configured hours for a severity, falling back to
// the built-in defaults when unset.
func (c *Config) SLAHours(severity domain.Severity) int {
	if c != nil {
		if hours, ok := c.SLA.Hours[string(severity)]; ok {
			return hours
		}
	}
	switch severity {
	case domain.SeverityUrgent:
		return 24
	case domain.SeverityHigh:
		return 72
	default:
		return 168
	}
}

// RoleOf resolves an actor id from the directory. Unknown actors
// default to staff.
func (c *Config) RoleOf(actorID string) domain.Role {
	if c != nil {
		if actor, ok := c.Actors[actorID]; ok {
			return domain.Role(actor.Role)
		}
	}
	return domain.RoleStaff
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "caseline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(scopeID string) string {
	return fmt.Sprintf(defaultTemplate, scopeID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a scope.
func Default(scopeID string) *Config {
	var cfg Config
	cfg.Scope.ID = scopeID
	cfg.Scope.Kind = "client-matter"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, scopeID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `scope:
  id: %s
  kind: client-matter

sla:
  hours:
    urgent: 24
    high: 72
    normal: 168

actors:
  lead-attorney:
    name: "Lead attorney"
    role: attorney
  paralegal:
    name: "Paralegal"
    role: staff
  client:
    name: "Client"
    role: client
`
