// Package walletcore is the Pairing Initiator: a client for the external
// wallet core process that performs the cryptographic pairing handshake.
//
// Ownership boundary:
// - dial + optional TLS/mTLS
// - hello handshake with project id and wallet metadata
// - one pair request in flight per connection
//
// Relay transport and session namespace negotiation stay in the wallet core.
package walletcore
