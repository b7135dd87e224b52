package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"droughtcover/crypto"
)

// Config captures the runtime configuration for coverd.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	GatewayAddress string `toml:"GatewayAddress"`
	DataDir        string `toml:"DataDir"`
	OwnerAddress   string `toml:"OwnerAddress"`
	OracleEndpoint string `toml:"OracleEndpoint"`
	NetworkName    string `toml:"NetworkName"`
	LogFile        string `toml:"LogFile"`
}

// Load loads the configuration from the given path, creating a default file
// on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.GatewayAddress) == "" {
		cfg.GatewayAddress = "127.0.0.1:8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./coverd-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "cover-local"
	}
	if strings.TrimSpace(cfg.OwnerAddress) == "" {
		return nil, fmt.Errorf("config file %s is missing OwnerAddress", path)
	}
	if _, err := crypto.DecodeAddress(cfg.OwnerAddress); err != nil {
		return nil, fmt.Errorf("config file %s has invalid OwnerAddress: %w", path, err)
	}

	return cfg, nil
}

// Owner parses the configured owner address.
func (c *Config) Owner() (crypto.Address, error) {
	return crypto.DecodeAddress(c.OwnerAddress)
}

// createDefault creates and saves a default configuration file. A fresh
// owner key is generated so the file is immediately usable; operators are
// expected to replace OwnerAddress with their real identity.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		RPCAddress:     "127.0.0.1:8545",
		GatewayAddress: "127.0.0.1:8080",
		DataDir:        "./coverd-data",
		OwnerAddress:   key.PubKey().Address().String(),
		NetworkName:    "cover-local",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
