package deeplink

import (
	"fmt"
	"strings"
)

const (
	PairingScheme = "wc"

	ParamRelayProtocol = "relay-protocol"
	ParamExpiry        = "expiry"
	ParamURI           = "uri"
)

// PairingURI is the decomposed form of wc:identifier@version?params.
type PairingURI struct {
	Scheme     string
	Identifier string
	Version    string
	Params     *Params
}

// String reassembles the URI; parameters keep their insertion order.
func (u PairingURI) String() string {
	return fmt.Sprintf("%s:%s@%s?%s", u.Scheme, u.Identifier, u.Version, u.Params.Encode())
}

func (u PairingURI) IsZero() bool {
	return u.Scheme == "" && u.Identifier == "" && u.Version == ""
}

// HasPairingScheme reports whether s starts with the pairing scheme literal.
func HasPairingScheme(s string) bool {
	return strings.HasPrefix(s, PairingScheme+":")
}

// ParsePairingURI splits s on the first ':', '@' and '?' in that order.
func ParsePairingURI(s string) (PairingURI, error) {
	if !HasPairingScheme(s) {
		return PairingURI{}, fmt.Errorf("%w: %q", ErrNotPairingScheme, s)
	}
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return PairingURI{}, fmt.Errorf("%w: missing ':'", ErrMalformedPairingURI)
	}
	identifier, versionAndParams, ok := strings.Cut(rest, "@")
	if !ok {
		return PairingURI{}, fmt.Errorf("%w: missing '@'", ErrMalformedPairingURI)
	}
	version, params, ok := strings.Cut(versionAndParams, "?")
	if !ok {
		return PairingURI{}, fmt.Errorf("%w: missing '?'", ErrMalformedPairingURI)
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return PairingURI{}, fmt.Errorf("%w: missing identifier", ErrMalformedPairingURI)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return PairingURI{}, fmt.Errorf("%w: missing version", ErrMalformedPairingURI)
	}
	if !isDecimal(version) {
		return PairingURI{}, fmt.Errorf("%w: version %q not numeric", ErrMalformedPairingURI, version)
	}

	return PairingURI{
		Scheme:     scheme,
		Identifier: identifier,
		Version:    version,
		Params:     ParseParams(params),
	}, nil
}

func isDecimal(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
