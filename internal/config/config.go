// Package config loads the application configuration from yaml with
// environment overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig     `yaml:"app"`
	Chains       []ChainConfig `yaml:"chains"`
	Transactions TxConfig      `yaml:"transactions"`
	Storage      StorageConfig `yaml:"storage"`
}

type AppConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type ChainConfig struct {
	ID     uint64 `yaml:"id"`
	Name   string `yaml:"name"`
	RPCURL string `yaml:"rpcUrl"`
}

type TxConfig struct {
	ConfirmationInterval time.Duration `yaml:"confirmationInterval"`
	ConfirmationTimeout  time.Duration `yaml:"confirmationTimeout"`
	RequestRatePerSec    float64       `yaml:"requestRatePerSecond"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	Passphrase string `yaml:"passphrase"`
}

func Default() Config {
	return Config{
		Transactions: TxConfig{
			ConfirmationInterval: time.Second,
			ConfirmationTimeout:  30 * time.Second,
			RequestRatePerSec:    10,
		},
	}
}

// LoadFromPath reads the first readable candidate config file, merged over
// defaults, then applies environment overrides. A missing file is not an
// error: defaults plus environment apply.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml", "config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src Config) {
	if src.App.ID != "" {
		dst.App.ID = src.App.ID
	}
	if src.App.Name != "" {
		dst.App.Name = src.App.Name
	}
	if len(src.Chains) > 0 {
		dst.Chains = src.Chains
	}
	if src.Transactions.ConfirmationInterval > 0 {
		dst.Transactions.ConfirmationInterval = src.Transactions.ConfirmationInterval
	}
	if src.Transactions.ConfirmationTimeout > 0 {
		dst.Transactions.ConfirmationTimeout = src.Transactions.ConfirmationTimeout
	}
	if src.Transactions.RequestRatePerSec > 0 {
		dst.Transactions.RequestRatePerSec = src.Transactions.RequestRatePerSec
	}
	if src.Storage.Path != "" {
		dst.Storage.Path = src.Storage.Path
	}
	if src.Storage.Passphrase != "" {
		dst.Storage.Passphrase = src.Storage.Passphrase
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DAPP_APP_ID"); v != "" {
		cfg.App.ID = v
	}
	if v := os.Getenv("DAPP_APP_NAME"); v != "" {
		cfg.App.Name = v
	}
	if v := os.Getenv("DAPP_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("DAPP_STORAGE_PASSPHRASE"); v != "" {
		cfg.Storage.Passphrase = v
	}
	if v := os.Getenv("DAPP_RPC_URL"); v != "" {
		chainID := uint64(0)
		if raw := os.Getenv("DAPP_CHAIN_ID"); raw != "" {
			if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
				chainID = parsed
			}
		}
		applied := false
		for i := range cfg.Chains {
			if chainID == 0 || cfg.Chains[i].ID == chainID {
				cfg.Chains[i].RPCURL = v
				applied = true
				break
			}
		}
		if !applied && chainID != 0 {
			cfg.Chains = append(cfg.Chains, ChainConfig{ID: chainID, RPCURL: v})
		}
	}
}
