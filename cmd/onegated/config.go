package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/onegate/internal/config"
	"github.com/danmuck/onegate/internal/gate"
	"github.com/danmuck/onegate/internal/session"
)

// onegated loader for TOML config with default overlay. Keys follow
// config.OnegateConfig; absent keys keep gate defaults.
func loadServiceConfig(path string) (gate.ServiceConfig, error) {
	cfg := gate.DefaultServiceConfig()

	var raw config.OnegateConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return gate.ServiceConfig{}, fmt.Errorf("load onegate config: %w", err)
	}
	if !meta.IsDefined("name") {
		raw.Name = cfg.Name
	}
	if !meta.IsDefined("addr") {
		raw.Addr = cfg.ListenAddr
	}
	if err := config.ValidateOnegateConfig(raw); err != nil {
		return gate.ServiceConfig{}, fmt.Errorf("load onegate config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = config.NormalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("link_token") {
		cfg.LinkToken = strings.TrimSpace(raw.LinkToken)
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := parseDuration("heartbeat_interval", raw.HeartbeatInterval)
		if err != nil {
			return gate.ServiceConfig{}, err
		}
		cfg.HeartbeatInterval = d
	}

	if meta.IsDefined("scheme_root") {
		cfg.Scheme.Root = strings.TrimSpace(raw.SchemeRoot)
	}
	if meta.IsDefined("pairing_prefix") {
		cfg.Scheme.PairingPrefix = strings.TrimSpace(raw.PairingPrefix)
	}
	if err := config.ValidateScheme(cfg.Scheme.Root, cfg.Scheme.PairingPrefix); err != nil {
		return gate.ServiceConfig{}, fmt.Errorf("load onegate config: %w", err)
	}
	if meta.IsDefined("relay_protocol") {
		cfg.RelayProtocol = strings.TrimSpace(raw.RelayProtocol)
	}
	if meta.IsDefined("expiry_offset") {
		d, err := parseDuration("expiry_offset", raw.ExpiryOffset)
		if err != nil {
			return gate.ServiceConfig{}, err
		}
		cfg.ExpiryOffset = d
	}

	if meta.IsDefined("wallet_address") {
		cfg.Wallet.Address = strings.TrimSpace(raw.WalletAddress)
	}
	if meta.IsDefined("wallet_project_id") {
		cfg.Wallet.ProjectID = strings.TrimSpace(raw.WalletProjectID)
	}
	if meta.IsDefined("wallet_max_connect_attempts") {
		cfg.Wallet.MaxConnectAttempts = raw.WalletMaxConnectAttempts
	}
	if meta.IsDefined("wallet_security_mode") {
		cfg.Wallet.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.WalletSecurityMode))
	}
	if meta.IsDefined("wallet_tls_enabled") {
		cfg.Wallet.Session.TLS.Enabled = raw.WalletTLSEnabled
	}
	if meta.IsDefined("wallet_tls_mutual") {
		cfg.Wallet.Session.TLS.Mutual = raw.WalletTLSMutual
	}
	if meta.IsDefined("wallet_tls_cert_file") {
		cfg.Wallet.Session.TLS.CertFile = strings.TrimSpace(raw.WalletTLSCertFile)
	}
	if meta.IsDefined("wallet_tls_key_file") {
		cfg.Wallet.Session.TLS.KeyFile = strings.TrimSpace(raw.WalletTLSKeyFile)
	}
	if meta.IsDefined("wallet_tls_ca_file") {
		cfg.Wallet.Session.TLS.CAFile = strings.TrimSpace(raw.WalletTLSCAFile)
	}
	if meta.IsDefined("wallet_tls_server_name") {
		cfg.Wallet.Session.TLS.ServerName = strings.TrimSpace(raw.WalletTLSServerName)
	}
	if meta.IsDefined("metadata") {
		cfg.Wallet.Metadata = raw.Metadata.SessionMetadata()
	}

	cfg.Wallet.Session = cfg.Wallet.Session.WithDefaults()
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive", key)
	}
	return d, nil
}
