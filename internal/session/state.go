package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/overrides"
	"github.com/teemow/inboxdigest/internal/reconcile"
)

// state is the complete session state. Transitions are methods with value
// receivers that return the next state; the Session applies them under its
// mutex.
type state struct {
	// seq is a monotonic counter stamped on every request and confirmation.
	seq uint64

	base    mailbox.Snapshot
	hasBase bool
	// cacheSeq and scanSeq are the requests behind the last applied cache
	// load and scan. A cache load never makes a scan stale.
	cacheSeq uint64
	scanSeq  uint64

	processing bool
	scanning   int

	overrides  overrides.Set
	graceUntil time.Time

	cacheErr error
	scanErr  error

	expired bool
	closed  bool
}

// next reserves a sequence number.
func (s state) next() (state, uint64) {
	s.seq++
	return s, s.seq
}

// onCacheLoaded applies a cached snapshot requested at seq. A cache never
// replaces a scan result, and an older cache request never replaces a newer
// one.
func (s state) onCacheLoaded(seq uint64, snap mailbox.Snapshot, err error) state {
	if s.closed {
		return s
	}
	if err != nil {
		s.cacheErr = err
		return s
	}
	s.cacheErr = nil

	switch {
	case snap.Status == mailbox.SnapshotProcessing:
		s.processing = true
	case !snap.Cached:
	case s.hasBase && (s.base.Source == mailbox.SourceScan || seq <= s.cacheSeq):
	default:
		s.base = snap
		s.cacheSeq = seq
		s.hasBase = true
		s.processing = false
	}
	return s
}

func (s state) onScanStarted() state {
	s.scanning++
	return s
}

// onScanResolved applies a scan requested at seq unless a newer scan was
// already applied. It reports whether the snapshot became the new base. Confirmed overrides older than the request
// are pruned because the scan already reflects them.
func (s state) onScanResolved(seq uint64, snap mailbox.Snapshot, err error) (state, bool) {
	if s.scanning > 0 {
		s.scanning--
	}
	if s.closed {
		return s, false
	}
	if err != nil {
		s.scanErr = err
		return s, false
	}
	s.scanErr = nil

	if snap.Status == mailbox.SnapshotProcessing {
		s.processing = true
		return s, false
	}
	if seq <= s.scanSeq {
		return s, false
	}

	snap.Source = mailbox.SourceScan
	s.base = snap
	s.scanSeq = seq
	s.hasBase = true
	s.processing = false
	s.cacheErr = nil
	s.overrides, _ = s.overrides.Prune(seq)
	return s, true
}

// onMutationRequested records o as an optimistic override. A delete opens
// the grace window ending at graceUntil.
func (s state) onMutationRequested(o overrides.LocalOverride, graceUntil time.Time) (state, overrides.LocalOverride) {
	s, o.Seq = s.next()
	s.overrides = s.overrides.Apply(o)
	if graceUntil.After(s.graceUntil) {
		s.graceUntil = graceUntil
	}
	return s, o
}

// onMutationConfirmed marks an override as accepted. It is a no-op for
// overrides that were superseded or already resolved.
func (s state) onMutationConfirmed(id string) (state, bool) {
	if s.closed {
		return s, false
	}
	next, seq := s.next()
	set, ok := next.overrides.Confirm(id, seq)
	if !ok {
		return s, false
	}
	next.overrides = set
	return next, true
}

// onMutationFailed rolls back an override. The view falls back to the
// current base for the fields it touched.
func (s state) onMutationFailed(id string) (state, overrides.LocalOverride, bool) {
	if s.closed {
		return s, overrides.LocalOverride{}, false
	}
	set, failed, ok := s.overrides.Rollback(id)
	if !ok {
		return s, overrides.LocalOverride{}, false
	}
	s.overrides = set
	return s, failed, true
}

func (s state) onExpired() state {
	s.expired = true
	return s
}

func (s state) onClosed() state {
	s.closed = true
	return s
}

// suppressed reports whether automatic digest regeneration must wait.
func (s state) suppressed(now time.Time) bool {
	return s.scanning > 0 || now.Before(s.graceUntil)
}

// view merges the base with the active overrides.
func (s state) view(mg reconcile.Merger) reconcile.View {
	var v reconcile.View
	if s.hasBase {
		v = mg.Merge(s.base, s.overrides.Active())
	} else {
		v = mg.Merge(mailbox.Snapshot{}, nil)
	}
	v.Processing = s.processing && !s.hasBase
	v.Scanning = s.scanning > 0
	v.PendingOverrides = s.overrides.Pending()

	switch {
	case s.expired:
		v.Err = backend.ErrSessionExpired
	case !s.hasBase && s.cacheErr != nil && s.scanErr != nil:
		v.Err = fmt.Errorf("%w: %w", backend.ErrUnavailable, errors.Join(s.cacheErr, s.scanErr))
	}
	return v
}
