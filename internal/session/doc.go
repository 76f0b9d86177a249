// Package session owns the wallet-core wire contract.
//
// Ownership boundary:
// - hello / hello.ack handshake envelopes
// - pair / pair.result envelopes
// - transport timeouts, retry backoff and TLS policy
//
// The wallet core performs the cryptographic pairing and relay work; this
// package only frames requests to it.
package session
