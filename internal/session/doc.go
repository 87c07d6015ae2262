// Package session owns the reconciled state of one mailbox account.
//
// A Session holds the base snapshot (from the cache or the latest scan), the
// set of optimistic overrides and the digest detector. Every change goes
// through a pure transition on an internal state value under a single mutex;
// backend calls run in goroutines and report back through further
// transitions. The user-facing View is recomputed from scratch by merging the
// base with the active overrides, so the arrival order of snapshots and
// confirmations cannot corrupt it.
//
// Typical use:
//
//	s, err := session.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	view, err := s.Load(ctx)      // cached view, scan continues in background
//	id, err := s.Archive(ctx, messageID, "Later")
//	s.Wait()                      // block until backend calls have settled
package session
