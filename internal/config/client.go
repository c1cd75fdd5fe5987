package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	BaseURL   string      `toml:"base_url"`
	Namespace string      `toml:"namespace"`
	LogFile   string      `toml:"log_file"`
	LogLevel  string      `toml:"log_level"`
	Redis     RedisConfig `toml:"redis"`
}

// RedisConfig switches the client message bus to Redis Streams.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Group    string `toml:"group"`
	Consumer string `toml:"consumer"`
}

const ClientConfigName = ".mastrogpt.toml"

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   "http://localhost:8080/",
		Namespace: "mastrogpt",
		LogLevel:  "info",
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Group:    "mastrogpt-chat",
			Consumer: "chat-1",
		},
	}
}

// LoadClientConfig reads path, or when path is empty looks for the default
// file name in the working directory and then in $HOME/.config/mastrogpt.
// A missing file yields the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	candidates := []string{path}
	if path == "" {
		candidates = []string{ClientConfigName}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".config", "mastrogpt", ClientConfigName))
		}
	}
	for _, c := range candidates {
		data, err := os.ReadFile(c)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return cfg, errors.Wrapf(err, "reading %s", c)
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing %s", c)
		}
		break
	}
	cfg.BaseURL = NormalizeBase(cfg.BaseURL)
	return cfg, nil
}

// NormalizeBase makes sure the base URL ends with a slash so that relative
// paths such as "api/my/..." can be appended to it.
func NormalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}
