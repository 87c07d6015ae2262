// Package digest decides when the AI digest of recent mail must be
// regenerated.
//
// A Detector fingerprints the messages received within a trailing window and
// compares the fingerprint with the one recorded at the last check. The very
// first fingerprint of a Detector is recorded silently as a baseline.
// Regeneration is further gated by a rate limiter (golang.org/x/time/rate,
// one attempt per interval) driven by an injected clock, and callers can
// suppress it while a scan or a delete grace window is active.
package digest
