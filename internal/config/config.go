package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "bitwire"

// Config holds the configuration options for the application.
type Config struct {
	ListenAddr   string      `yaml:"listenAddr,omitempty"`
	MaxPeers     int         `yaml:"maxPeers,omitempty"`
	DataDir      string      `yaml:"dataDir,omitempty"`
	PeerIDPrefix string      `yaml:"peerIDPrefix,omitempty"`
	Wire         *WireConfig `yaml:"wire,omitempty"`
}

// WireConfig holds codec limits and peer connection settings.
type WireConfig struct {
	MaxMessageLen    int              `yaml:"maxMessageLen,omitempty"`
	MaxDecodeDepth   int              `yaml:"maxDecodeDepth,omitempty"`
	StrictKeySort    bool             `yaml:"strictKeySort,omitempty"`
	HandshakeTimeout time.Duration    `yaml:"handshakeTimeout,omitempty"`
	ReadTimeout      time.Duration    `yaml:"readTimeout,omitempty"`
	ClientName       string           `yaml:"clientName,omitempty"`
	Extensions       map[string]uint8 `yaml:"extensions,omitempty"`
}

// DBPath is where peer records are stored.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, dbFileName)
}

// LogPath is where debug logs are written.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, logFileName)
}

// Path returns the location GetConfig reads from.
func Path() string {
	return filepath.Join(xdg.ConfigHome, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	wireCfg := zeroOr(cfg.Wire, defaults.Wire)

	return &Config{
		ListenAddr:   zeroOr(cfg.ListenAddr, defaults.ListenAddr),
		MaxPeers:     zeroOr(cfg.MaxPeers, defaults.MaxPeers),
		DataDir:      zeroOr(cfg.DataDir, defaults.DataDir),
		PeerIDPrefix: zeroOr(cfg.PeerIDPrefix, defaults.PeerIDPrefix),
		Wire: &WireConfig{
			MaxMessageLen:    zeroOr(wireCfg.MaxMessageLen, defaults.Wire.MaxMessageLen),
			MaxDecodeDepth:   zeroOr(wireCfg.MaxDecodeDepth, defaults.Wire.MaxDecodeDepth),
			StrictKeySort:    zeroOr(wireCfg.StrictKeySort, defaults.Wire.StrictKeySort),
			HandshakeTimeout: zeroOr(wireCfg.HandshakeTimeout, defaults.Wire.HandshakeTimeout),
			ReadTimeout:      zeroOr(wireCfg.ReadTimeout, defaults.Wire.ReadTimeout),
			ClientName:       zeroOr(wireCfg.ClientName, defaults.Wire.ClientName),
			Extensions:       zeroOr(wireCfg.Extensions, defaults.Wire.Extensions),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   listenAddr,
		MaxPeers:     maxPeers,
		DataDir:      dataDir,
		PeerIDPrefix: peerIDPrefix,
		Wire: &WireConfig{
			MaxMessageLen:    maxMessageLen,
			MaxDecodeDepth:   maxDecodeDepth,
			StrictKeySort:    strictKeySort,
			HandshakeTimeout: handshakeTimeout,
			ReadTimeout:      readTimeout,
			ClientName:       clientName,
			Extensions:       map[string]uint8{"ut_metadata": 1},
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
