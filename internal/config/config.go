package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"infobot/internal/domain"
)

// Config is the root configuration for InfoBot. It is loaded once at
// startup and read-only afterwards; components receive it (or slices
// of it) at construction instead of looking it up ambiently.
type Config struct {
	General     GeneralConfig     `yaml:"general"`
	Teachers    []ContactEntry    `yaml:"teachers"`
	Students    []ContactEntry    `yaml:"students"`
	SiliconFlow SiliconFlowConfig `yaml:"siliconflow"`
	Forward     ForwardConfig     `yaml:"forward"`
	Journal     JournalConfig     `yaml:"journal"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Upkeep      UpkeepConfig      `yaml:"upkeep"`
}

type GeneralConfig struct {
	LogLevel            string `yaml:"logLevel"`
	LogFile             string `yaml:"logFile,omitempty"`
	Automator           string `yaml:"automator"` // "osascript" | "openwechat"
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds"`
	AckText             string `yaml:"ackText"`
}

// SiliconFlowConfig configures the AI enrichment client.
type SiliconFlowConfig struct {
	Enabled        bool    `yaml:"enabled"`
	APIKey         string  `yaml:"apiKey,omitempty"`
	APIBase        string  `yaml:"apiBase"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"maxTokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

// ForwardConfig tunes the fan-out of teacher messages. All filters are
// off by default, so every teacher text message is forwarded.
type ForwardConfig struct {
	Template            string   `yaml:"template,omitempty"`
	UseAISummary        bool     `yaml:"useAiSummary"`
	UseAIAnalysis       bool     `yaml:"useAiAnalysis"`
	MinMessageLength    int      `yaml:"minMessageLength"`
	BlacklistKeywords   []string `yaml:"blacklistKeywords,omitempty"`
	ImportantKeywords   []string `yaml:"importantKeywords,omitempty"`
	UnimportantKeywords []string `yaml:"unimportantKeywords,omitempty"`
}

type JournalConfig struct {
	DBPath        string `yaml:"dbPath"`
	RetentionDays int    `yaml:"retentionDays"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// UpkeepConfig schedules the periodic maintenance tasks.
type UpkeepConfig struct {
	HealthCheckMinutes int  `yaml:"healthCheckMinutes"`
	CleanupMinutes     int  `yaml:"cleanupMinutes"`
	DailyReport        bool `yaml:"dailyReport"`
}

// ContactEntry is a []string-or-map friendly contact declaration.
// Plain strings use the same value for display name and window match;
// mappings may override the match identifier:
//
//	teachers:
//	  - 王老師
//	  - name: 李老師
//	    match: 李老師(數學)
type ContactEntry struct {
	Name  string `yaml:"name"`
	Match string `yaml:"match,omitempty"`
}

func (e *ContactEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.Name = value.Value
		return nil
	}
	type plain ContactEntry
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = ContactEntry(p)
	return nil
}

func (e ContactEntry) contact(role domain.Role) domain.Contact {
	return domain.Contact{Role: role, DisplayName: e.Name, MatchID: e.Match}
}

// TeacherContacts returns the configured teachers in declaration order.
func (c *Config) TeacherContacts() []domain.Contact {
	out := make([]domain.Contact, 0, len(c.Teachers))
	for _, e := range c.Teachers {
		out = append(out, e.contact(domain.RoleTeacher))
	}
	return out
}

// StudentContacts returns the configured students in declaration order,
// which is also the forward fan-out order.
func (c *Config) StudentContacts() []domain.Contact {
	out := make([]domain.Contact, 0, len(c.Students))
	for _, e := range c.Students {
		out = append(out, e.contact(domain.RoleStudent))
	}
	return out
}

// Resolve attributes a window/chat identifier to exactly one configured
// contact. Teachers are checked first; an unmatched name comes back as
// RoleUnknown.
func (c *Config) Resolve(name string) domain.Contact {
	for _, e := range c.Teachers {
		if e.Name == name || e.Match == name {
			return e.contact(domain.RoleTeacher)
		}
	}
	for _, e := range c.Students {
		if e.Name == name || e.Match == name {
			return e.contact(domain.RoleStudent)
		}
	}
	return domain.Contact{Role: domain.RoleUnknown, DisplayName: name}
}

// DefaultConfigDir returns the default config directory (~/.infobot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".infobot"
	}
	return filepath.Join(home, ".infobot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads, env-expands, parses and validates the YAML config file.
// Any validation failure is fatal to the caller: the bot never starts
// on a half-valid configuration.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is
// unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values. All problems are
// collected so the operator sees the full list at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.Automator {
	case "osascript", "openwechat":
		// valid
	default:
		errs = append(errs, "general.automator must be one of: osascript, openwechat")
	}
	if cfg.General.PollIntervalSeconds < 1 {
		errs = append(errs, "general.pollIntervalSeconds must be >= 1")
	}
	if cfg.General.AckText == "" {
		errs = append(errs, "general.ackText must not be empty")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if len(cfg.Teachers) == 0 {
		errs = append(errs, "teachers: at least one teacher contact is required")
	}
	seen := map[string]string{}
	for _, e := range append(append([]ContactEntry{}, cfg.Teachers...), cfg.Students...) {
		if e.Name == "" {
			errs = append(errs, "contacts: every entry needs a name")
			continue
		}
		if prev, dup := seen[e.Name]; dup {
			errs = append(errs, fmt.Sprintf("contacts: %q declared more than once (first as %s)", e.Name, prev))
			continue
		}
		seen[e.Name] = "contact"
	}

	if cfg.SiliconFlow.Enabled {
		if cfg.SiliconFlow.APIKey == "" {
			errs = append(errs, "siliconflow.apiKey is required when siliconflow.enabled is true")
		} else if !strings.HasPrefix(cfg.SiliconFlow.APIKey, "sk-") {
			errs = append(errs, "siliconflow.apiKey must start with sk-")
		}
		if cfg.SiliconFlow.APIBase == "" {
			errs = append(errs, "siliconflow.apiBase must not be empty")
		}
		if cfg.SiliconFlow.TimeoutSeconds < 1 {
			errs = append(errs, "siliconflow.timeoutSeconds must be >= 1")
		}
	}

	if cfg.Forward.MinMessageLength < 0 {
		errs = append(errs, "forward.minMessageLength must be >= 0")
	}

	if cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath must not be empty")
	}
	if cfg.Journal.RetentionDays < 1 {
		errs = append(errs, "journal.retentionDays must be >= 1")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics.enabled is true")
	}
	if cfg.Upkeep.HealthCheckMinutes < 1 {
		errs = append(errs, "upkeep.healthCheckMinutes must be >= 1")
	}
	if cfg.Upkeep.CleanupMinutes < 1 {
		errs = append(errs, "upkeep.cleanupMinutes must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
