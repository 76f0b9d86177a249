// Package gate runs the onegate daemon: it feeds deep links from the HTTP
// surface and the launch flag into the intake hub, initializes the wallet
// kit in the background and serves health, readiness and metrics.
package gate
