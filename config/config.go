package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings of a single tree instance.
type Config struct {
	Height   uint8  `yaml:"height"`
	HashType string `yaml:"hash_type"`
	// NodeWidth overrides the hash type's default truncation width when
	// non-zero.
	NodeWidth int `yaml:"node_width"`

	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`
	// ContractInterface names the contract the leaves are read from (e.g. Shield).
	ContractInterface string `yaml:"contract_interface"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds the exponential backoff used for persistence writes.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

// Default returns the production settings.
func Default() Config {
	return Config{
		Height:            TreeHeight,
		HashType:          DefaultHashType,
		DBPath:            "timber-db",
		LogLevel:          "info",
		ContractInterface: "Shield",
		Retry: RetryConfig{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			MaxElapsed:      time.Minute,
		},
	}
}

// Load reads a YAML config file on top of Default and then applies TIMBER_*
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TIMBER_HEIGHT"); ok {
		h, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("TIMBER_HEIGHT: %w", err)
		}
		c.Height = uint8(h)
	}
	if v, ok := lookup("TIMBER_HASH_TYPE"); ok {
		c.HashType = v
	}
	if v, ok := lookup("TIMBER_NODE_WIDTH"); ok {
		w, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIMBER_NODE_WIDTH: %w", err)
		}
		c.NodeWidth = w
	}
	if v, ok := lookup("TIMBER_DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := lookup("TIMBER_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("TIMBER_RPC_URL"); ok {
		c.RPCURL = v
	}
	if v, ok := lookup("TIMBER_CONTRACT_ADDRESS"); ok {
		c.ContractAddress = v
	}
	if v, ok := lookup("TIMBER_CONTRACT_INTERFACE"); ok {
		c.ContractInterface = v
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"TIMBER_RETRY_INITIAL_INTERVAL", &c.Retry.InitialInterval},
		{"TIMBER_RETRY_MAX_INTERVAL", &c.Retry.MaxInterval},
		{"TIMBER_RETRY_MAX_ELAPSED", &c.Retry.MaxElapsed},
	} {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = dur
	}
	return nil
}
