package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ClientConfig is the configuration surface the embedded hub-link client
// consumes.
type ClientConfig struct {
	ServerSocket string `toml:"server-socket"`
	ServerPort   int    `toml:"server-port"`
	TrustRoot    string `toml:"trust-root"`
	ServerName   string `toml:"server-name"`
	MetricsAddr  string `toml:"metrics-addr"`
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 9400
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.ServerSocket) == "" {
		return fmt.Errorf("config: server-socket is required")
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return fmt.Errorf("config: server-port out of range: %d", cfg.ServerPort)
	}
	return nil
}

// Addr joins the configured socket and port for the dialer.
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.ServerSocket, strconv.Itoa(c.ServerPort))
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
