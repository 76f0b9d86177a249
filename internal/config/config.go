package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// OnegateConfig is the on-disk shape of the daemon config. Keys are flat
// except for the wallet metadata table.
type OnegateConfig struct {
	Name              string   `toml:"name"`
	Addr              string   `toml:"addr"`
	CorsOrigins       []string `toml:"cors_origins"`
	HeartbeatInterval string   `toml:"heartbeat_interval"`
	LinkToken         string   `toml:"link_token"`

	SchemeRoot    string `toml:"scheme_root"`
	PairingPrefix string `toml:"pairing_prefix"`
	RelayProtocol string `toml:"relay_protocol"`
	ExpiryOffset  string `toml:"expiry_offset"`

	WalletAddress            string `toml:"wallet_address"`
	WalletProjectID          string `toml:"wallet_project_id"`
	WalletMaxConnectAttempts int    `toml:"wallet_max_connect_attempts"`
	WalletSecurityMode       string `toml:"wallet_security_mode"`
	WalletTLSEnabled         bool   `toml:"wallet_tls_enabled"`
	WalletTLSMutual          bool   `toml:"wallet_tls_mutual"`
	WalletTLSCertFile        string `toml:"wallet_tls_cert_file"`
	WalletTLSKeyFile         string `toml:"wallet_tls_key_file"`
	WalletTLSCAFile          string `toml:"wallet_tls_ca_file"`
	WalletTLSServerName      string `toml:"wallet_tls_server_name"`

	Metadata MetadataConfig `toml:"metadata"`
}

type MetadataConfig struct {
	Name              string   `toml:"name"`
	Description       string   `toml:"description"`
	URL               string   `toml:"url"`
	Icons             []string `toml:"icons"`
	RedirectNative    string   `toml:"redirect_native"`
	RedirectUniversal string   `toml:"redirect_universal"`
}

func LoadOnegateConfig(path string) (OnegateConfig, error) {
	var cfg OnegateConfig
	if err := loadToml(path, &cfg); err != nil {
		return OnegateConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "onegate"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7420"
	}
	if err := ValidateOnegateConfig(cfg); err != nil {
		return OnegateConfig{}, err
	}
	return cfg, nil
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

func ValidateOnegateConfig(cfg OnegateConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("onegate config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("onegate config missing addr")
	}
	if err := ValidateScheme(cfg.SchemeRoot, cfg.PairingPrefix); err != nil {
		return err
	}
	for key, raw := range map[string]string{
		"expiry_offset":      cfg.ExpiryOffset,
		"heartbeat_interval": cfg.HeartbeatInterval,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s invalid: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if cfg.WalletMaxConnectAttempts < 0 {
		return fmt.Errorf("wallet_max_connect_attempts must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.WalletSecurityMode)) {
	case "", "development", "production":
	default:
		return fmt.Errorf("wallet_security_mode unknown: %s", cfg.WalletSecurityMode)
	}
	if strings.TrimSpace(cfg.WalletAddress) != "" && strings.TrimSpace(cfg.WalletProjectID) == "" {
		return fmt.Errorf("wallet_project_id required when wallet_address is set")
	}
	return nil
}

// ValidateScheme checks an optional scheme root and pairing prefix pair.
// Empty values fall back to the built-in scheme.
func ValidateScheme(root, prefix string) error {
	root = strings.TrimSpace(root)
	prefix = strings.TrimSpace(prefix)
	if root != "" && !strings.HasSuffix(root, "://") {
		return fmt.Errorf("scheme_root must end with \"://\": %s", root)
	}
	if prefix != "" && root != "" && !strings.HasPrefix(prefix, root) {
		return fmt.Errorf("pairing_prefix %q must start with scheme_root %q", prefix, root)
	}
	return nil
}
