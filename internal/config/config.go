package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr        string
	AuthToken         string
	ServerDBPath      string
	ClientDBPath      string
	ServerURL         string
	NtfyServer        string
	NtfyTopic         string
	NotifyInterval    time.Duration
	RecurrenceHardCap int
}

// Load reads $HOME/.capd.yaml (or ./.capd.yaml) and CAPD_* environment
// overrides. A missing config file is fine; everything has a default
// except the auth token, which defaults to open access like the
// original deployment.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".capd")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("CAPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := defaultDataDir()
	v.SetDefault("listen_addr", ":8787")
	v.SetDefault("auth_token", "")
	v.SetDefault("server_db_path", filepath.Join(dataDir, "server.db"))
	v.SetDefault("client_db_path", filepath.Join(dataDir, "queue.db"))
	v.SetDefault("server_url", "http://localhost:8787")
	v.SetDefault("ntfy_server", "https://ntfy.sh")
	v.SetDefault("ntfy_topic", "")
	v.SetDefault("notify_interval", "30s")
	v.SetDefault("recurrence_hard_cap", 500)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		ListenAddr:        v.GetString("listen_addr"),
		AuthToken:         v.GetString("auth_token"),
		ServerDBPath:      v.GetString("server_db_path"),
		ClientDBPath:      v.GetString("client_db_path"),
		ServerURL:         strings.TrimRight(v.GetString("server_url"), "/"),
		NtfyServer:        strings.TrimRight(v.GetString("ntfy_server"), "/"),
		NtfyTopic:         v.GetString("ntfy_topic"),
		NotifyInterval:    v.GetDuration("notify_interval"),
		RecurrenceHardCap: v.GetInt("recurrence_hard_cap"),
	}
	if cfg.NotifyInterval <= 0 {
		cfg.NotifyInterval = 30 * time.Second
	}
	if cfg.RecurrenceHardCap <= 0 {
		cfg.RecurrenceHardCap = 500
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "capd")
}
