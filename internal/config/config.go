package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// S3Config holds the optional S3 mirror settings for downloads. When
// Enabled is false the rest of the block is ignored.
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

// Config is the top-level tool configuration. Command-line flags override
// these values; these values override built-in defaults.
type Config struct {
	// Server is the default connection string (USER[:PASSWORD]@HOST[:PORT])
	// used when none is given on the command line.
	Server string `mapstructure:"server" yaml:"server"`

	// ArchiveRoot is the default target mailbox for move.
	ArchiveRoot string `mapstructure:"archive_root" yaml:"archive_root"`

	// Omit lists mailbox display names that move skips, e.g. INBOX.
	Omit []string `mapstructure:"omit" yaml:"omit"`

	// CutoffYear, when non-zero, overrides the default cutoff of the
	// current year minus one. Mails sent in years before it count as old.
	CutoffYear int `mapstructure:"cutoff_year" yaml:"cutoff_year"`

	// JournalPath is the location of the SQLite run journal.
	JournalPath string `mapstructure:"journal_path" yaml:"journal_path"`

	// Plain connects without TLS (STARTTLS is still used when offered).
	Plain bool `mapstructure:"plain" yaml:"plain"`

	// Verbose enables debug diagnostics including protocol tracing.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// NoColor disables colored report output.
	NoColor bool `mapstructure:"no_color" yaml:"no_color"`

	// S3 mirrors downloaded messages to a bucket when enabled.
	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailkeep/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailkeep", "config.yaml")
}

// DefaultJournalPath returns the default path for the run journal,
// located at ~/.local/share/mailkeep/journal.db.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "journal.db")
	}
	return filepath.Join(home, ".local", "share", "mailkeep", "journal.db")
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		ArchiveRoot: "Archive",
		JournalPath: DefaultJournalPath(),
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// Load reads configuration from the given YAML file path using Viper.
// A missing file is not an error: the built-in defaults apply. The
// MAILKEEP_SERVER environment variable, when set, overrides the server
// value from the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("archive_root", "Archive")
	v.SetDefault("journal_path", DefaultJournalPath())
	v.SetDefault("s3.region", "us-east-1")

	cfg := defaultConfig()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			applyEnv(cfg)
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, &ConfigError{
			Field:   "file",
			Message: fmt.Sprintf("reading config %s: %v", path, err),
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{
			Field:   "file",
			Message: fmt.Sprintf("parsing config %s: %v", path, err),
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables on top of file values. A .env in
// the working directory is loaded into the environment by the entrypoint
// before this runs.
func applyEnv(cfg *Config) {
	if server := os.Getenv("MAILKEEP_SERVER"); server != "" {
		cfg.Server = server
	}
}
