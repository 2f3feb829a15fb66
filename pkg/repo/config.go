package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config stores repository-local settings in .grit/config.toml.
type Config struct {
	User   UserConfig   `toml:"user"`
	Commit CommitConfig `toml:"commit"`
}

// UserConfig is the identity recorded as author/committer of new commits.
type UserConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// CommitConfig holds commit policy knobs.
type CommitConfig struct {
	// AllowEmptyMessage permits commits with an empty message. Off by
	// default: an empty message is rejected with ErrEmptyCommitMessage.
	AllowEmptyMessage bool `toml:"allow_empty_message"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GritDir, "config.toml")
}

// ReadConfig reads .grit/config.toml. Missing config returns a zero config.
func (r *Repo) ReadConfig() (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(r.configPath(), &cfg); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}

// WriteConfig atomically writes .grit/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}

	tmp, err := os.CreateTemp(r.GritDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// signature assembles the "Name <email>" author/committer string from config.
// When no identity is configured, a default placeholder is used so commits
// never fail on missing identity.
func (r *Repo) signature() (string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	name := cfg.User.Name
	if name == "" {
		name = "grit"
	}
	email := cfg.User.Email
	if email == "" {
		email = "(none)"
	}
	return fmt.Sprintf("%s <%s>", name, email), nil
}
