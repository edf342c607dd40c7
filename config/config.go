package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
)

// CurrencyEntry admits a currency into the valid set with its fee.
type CurrencyEntry struct {
	Address string `toml:"Address"`
	FeeBps  uint32 `toml:"FeeBps"`
}

// ContentEntry seeds the static registry with a content item.
type ContentEntry struct {
	ContentID string `toml:"ContentID"`
	Owner     string `toml:"Owner"`
	Active    bool   `toml:"Active"`
}

// DistributorEntry seeds the static registry with a distributor and binds its
// address to a remote contract endpoint.
type DistributorEntry struct {
	Address  string `toml:"Address"`
	Endpoint string `toml:"Endpoint"`
	Active   bool   `toml:"Active"`
}

// PolicyEntry seeds the static registry with a policy and binds its address
// to a remote contract endpoint.
type PolicyEntry struct {
	Address  string `toml:"Address"`
	Endpoint string `toml:"Endpoint"`
	Audited  bool   `toml:"Audited"`
}

type Config struct {
	ListenAddress      string  `toml:"ListenAddress"`
	MetricsAddress     string  `toml:"MetricsAddress"`
	DataDir            string  `toml:"DataDir"`
	GovernanceAddress  string  `toml:"GovernanceAddress"`
	TreasuryAddress    string  `toml:"TreasuryAddress"`
	VaultAddress       string  `toml:"VaultAddress"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	LogPath            string  `toml:"LogPath"`

	Currencies   []CurrencyEntry    `toml:"Currencies"`
	Contents     []ContentEntry     `toml:"Contents"`
	Distributors []DistributorEntry `toml:"Distributors"`
	Policies     []PolicyEntry      `toml:"Policies"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./rights-data"
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
}

// Validate checks address formats and entry completeness without resolving
// anything external.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"GovernanceAddress": c.GovernanceAddress,
		"TreasuryAddress":   c.TreasuryAddress,
		"VaultAddress":      c.VaultAddress,
	} {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("%s must be set", name)
		}
		if _, err := types.ParseAddress(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for i, entry := range c.Currencies {
		if _, err := types.ParseAddress(entry.Address); err != nil {
			return fmt.Errorf("Currencies[%d].Address: %w", i, err)
		}
	}
	for i, entry := range c.Contents {
		if _, err := types.ParseHash(entry.ContentID); err != nil {
			return fmt.Errorf("Contents[%d].ContentID: %w", i, err)
		}
		if _, err := types.ParseAddress(entry.Owner); err != nil {
			return fmt.Errorf("Contents[%d].Owner: %w", i, err)
		}
	}
	for i, entry := range c.Distributors {
		if _, err := types.ParseAddress(entry.Address); err != nil {
			return fmt.Errorf("Distributors[%d].Address: %w", i, err)
		}
		if strings.TrimSpace(entry.Endpoint) == "" {
			return fmt.Errorf("Distributors[%d].Endpoint must be set", i)
		}
	}
	for i, entry := range c.Policies {
		if _, err := types.ParseAddress(entry.Address); err != nil {
			return fmt.Errorf("Policies[%d].Address: %w", i, err)
		}
		if strings.TrimSpace(entry.Endpoint) == "" {
			return fmt.Errorf("Policies[%d].Endpoint must be set", i)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:      ":8545",
		MetricsAddress:     ":9464",
		DataDir:            "./rights-data",
		GovernanceAddress:  zeroPaddedAddress(0x01),
		TreasuryAddress:    zeroPaddedAddress(0x02),
		VaultAddress:       zeroPaddedAddress(0x03),
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
		Currencies:         []CurrencyEntry{{Address: zeroPaddedAddress(0x00), FeeBps: 500}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
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

func zeroPaddedAddress(last byte) string {
	raw := make([]byte, 20)
	raw[19] = last
	return fmt.Sprintf("0x%x", raw)
}
