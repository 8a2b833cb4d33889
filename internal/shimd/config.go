// Package shimd holds daemon configuration, logging, and module
// supervision for the shim daemon.
package shimd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for shimd.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Shim     ShimConfig     `toml:"shim"`
	Jellyfin JellyfinConfig `toml:"jellyfin"`
	Identity IdentityConfig `toml:"identity"`
	Modules  ModulesConfig  `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ShimConfig points at the player host's shim HTTP endpoint.
type ShimConfig struct {
	BaseURL   string `toml:"base_url"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// JellyfinConfig configures the optional media server item resolver.
type JellyfinConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	UserID    string `toml:"user_id"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// IdentityConfig carries the session identity announced to the player host.
type IdentityConfig struct {
	UserID      string `toml:"user_id"`
	AccessToken string `toml:"access_token"`
	Address     string `toml:"address"`
	Name        string `toml:"name"`
	Username    string `toml:"username"`
	UUID        string `toml:"uuid"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
	Bridge       BridgeConfig       `toml:"bridge"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// BridgeConfig configures the shim bridge module.
type BridgeConfig struct {
	Enabled bool   `toml:"enabled"`
	NodeID  string `toml:"node_id"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings needed before module construction.
func (c Config) Validate() error {
	if c.Modules.Bridge.Enabled {
		if strings.TrimSpace(c.Shim.BaseURL) == "" {
			return errors.New("shim.base_url required when bridge enabled")
		}
		if strings.TrimSpace(c.Modules.Bridge.NodeID) == "" {
			return errors.New("modules.bridge.node_id required")
		}
	}
	if !c.Modules.EmbeddedMQTT.Enabled && strings.TrimSpace(c.Server.Broker) == "" {
		return errors.New("server.broker required when embedded broker disabled")
	}
	return nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "shim", "shimd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "shim", "shimd.toml"), nil
}
