package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "onegate":
		return onegateTemplate, nil
	case "onegate-prod":
		return onegateProdTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const onegateTemplate = `name = "onegate"
addr = "127.0.0.1:7420"
cors_origins = ["http://localhost:3000"]
heartbeat_interval = "30s"
link_token = ""

scheme_root = "onegate://"
pairing_prefix = "onegate://wc?uri="
relay_protocol = "irn"
expiry_offset = "1h"

wallet_address = "127.0.0.1:7430"
wallet_project_id = "replace-with-project-id"
wallet_max_connect_attempts = 5
wallet_security_mode = "development"

[metadata]
name = "Onegate"
description = "Onegate wallet"
url = "https://onegate.local"
icons = []
redirect_native = "onegate://"
redirect_universal = ""
`

const onegateProdTemplate = `name = "onegate"
addr = "127.0.0.1:7420"
cors_origins = []
heartbeat_interval = "1m"
link_token = "replace-with-shared-token"

scheme_root = "onegate://"
pairing_prefix = "onegate://wc?uri="
relay_protocol = "irn"
expiry_offset = "1h"

wallet_address = "walletcore.internal:7430"
wallet_project_id = "replace-with-project-id"
wallet_max_connect_attempts = 10
wallet_security_mode = "production"
wallet_tls_enabled = true
wallet_tls_mutual = true
wallet_tls_cert_file = "certs/onegate.crt"
wallet_tls_key_file = "certs/onegate.key"
wallet_tls_ca_file = "certs/ca.crt"
wallet_tls_server_name = "walletcore.internal"

[metadata]
name = "Onegate"
description = "Onegate wallet"
url = "https://onegate.app"
icons = []
redirect_native = "onegate://"
redirect_universal = ""
`
