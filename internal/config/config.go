// Package config handles loading, validating, and writing foldsort's
// configuration file.
//
// The config defines:
//   - The folder a Sort run scans by default
//   - The rules file the Store loads from
//   - The folder run reports and audit logs are written to
//
// Directory discovery honors FOLDSORT_CONFIG_DIR, FOLDSORT_DATA_DIR, and
// FOLDSORT_SOURCE_FOLDER overrides; the core itself only consumes the
// parsed Config struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the small struct the sorting core consumes: the folder to
// scan, the rules file to load, and where run state gets written.
type Config struct {
	SourceFolder string `yaml:"source_folder"`
	RulesFile    string `yaml:"rules_file"`
	LogsFolder   string `yaml:"logs_folder"`
}

// Load reads and parses config.yaml from the given path.
// If the file doesn't exist, returns defaults (not an error).
// Invalid YAML or validation failures return an error.
func Load(path string) (*Config, error) {
	cfg := applyDefaults(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with all fields populated
// and a comment header. The values are the same defaults Load uses when
// no config file exists.
func WriteDefault(path string) error {
	cfg := applyDefaults(path)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# foldsort configuration
#
# source_folder: directory a 'foldsort sort' run scans by default
# rules_file:    YAML file holding the ruleset
# logs_folder:   where run reports and the audit log are written

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// applyDefaults returns a Config rooted next to the config file itself,
// honoring FOLDSORT_SOURCE_FOLDER when set.
func applyDefaults(configPath string) *Config {
	dir := filepath.Dir(configPath)

	source := os.Getenv("FOLDSORT_SOURCE_FOLDER")
	if source == "" {
		source = filepath.Join(dir, "inbox")
	}

	return &Config{
		SourceFolder: source,
		RulesFile:    filepath.Join(dir, "rules.yaml"),
		LogsFolder:   filepath.Join(dir, "logs"),
	}
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.SourceFolder == "" {
		return fmt.Errorf("source_folder must not be empty")
	}
	if cfg.RulesFile == "" {
		return fmt.Errorf("rules_file must not be empty")
	}
	if cfg.LogsFolder == "" {
		return fmt.Errorf("logs_folder must not be empty")
	}
	return nil
}

// DiscoverConfigDir resolves the directory foldsort's config.yaml lives
// in, honoring FOLDSORT_CONFIG_DIR before falling back to
// os.UserConfigDir()/foldsort.
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("FOLDSORT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, "foldsort"), nil
}

// DiscoverDataDir resolves a directory for run state, honoring
// FOLDSORT_DATA_DIR before falling back to DiscoverConfigDir. The CLI
// writes runs.yaml and the audit log under logs_folder instead.
func DiscoverDataDir() (string, error) {
	if dir := os.Getenv("FOLDSORT_DATA_DIR"); dir != "" {
		return dir, nil
	}
	return DiscoverConfigDir()
}
