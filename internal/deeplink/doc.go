// Package deeplink owns deep-link to pairing URI normalization.
//
// Ownership boundary:
// - scheme root and pairing prefix checks
// - best-effort single percent-decode
// - pairing URI decomposition and reassembly
// - relay-protocol / expiry defaulting
//
// The package holds no state across calls. The only impure input is the
// clock used for the expiry default.
package deeplink
