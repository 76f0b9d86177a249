package deeplink

import "errors"

var (
	ErrMalformedPairingURI = errors.New("deeplink: malformed pairing uri")
	ErrNotPairingScheme    = errors.New("deeplink: not a pairing scheme")
	ErrInvalidEncoding     = errors.New("deeplink: escapes decode to invalid utf-8")
)
