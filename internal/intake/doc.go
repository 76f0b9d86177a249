// Package intake owns deep-link delivery and hand-off to the pairing
// initiator.
//
// Ownership boundary:
// - link hub (launch link + live dispatch)
// - one subscription per mounted Intake
// - normalization, initiator lookup and pair call per link
//
// Links are handled one at a time on the Intake loop goroutine. Intake never
// returns handler failures to its caller; every outcome is logged and
// reported.
package intake
