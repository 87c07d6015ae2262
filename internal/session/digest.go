package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
)

// DigestStatus is the digest as known to the session.
type DigestStatus struct {
	Text  string       `json:"text"`
	State digest.State `json:"state"`
}

// Digest returns the last digest, fetching the stored one from the
// summarizer when none has been generated in this session.
func (s *Session) Digest(ctx context.Context) (DigestStatus, error) {
	s.mu.Lock()
	err := s.usable()
	s.mu.Unlock()
	if err != nil {
		return DigestStatus{}, err
	}

	st := s.detector.State()
	if st.LastSummary == "" {
		if _, err := s.detector.Load(ctx); err != nil {
			s.handleBackendError(err)
			return DigestStatus{State: st}, err
		}
		st = s.detector.State()
	}
	return DigestStatus{Text: st.LastSummary, State: st}, nil
}

// RegenerateDigest regenerates the digest from the current view. It skips
// the change check but not the rate limit; a call inside the minimum
// interval fails with *backend.RateLimitedError.
func (s *Session) RegenerateDigest(ctx context.Context) (digest.Summary, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return digest.Summary{}, err
	}
	v := s.st.view(s.merger)
	s.mu.Unlock()

	sum, err := s.detector.Regenerate(ctx, v.Messages)
	s.recordDigest(ctx, err)
	if err != nil {
		s.handleBackendError(err)
		return digest.Summary{}, err
	}
	return sum, nil
}

// checkDigest runs the change detector against the current view and, when
// the recent message set changed, regenerates the digest in the background.
func (s *Session) checkDigest() {
	if !s.cfg.AutoDigest || s.cfg.Summarizer == nil {
		return
	}

	s.mu.Lock()
	if s.usable() != nil || !s.st.hasBase {
		s.mu.Unlock()
		return
	}
	v := s.st.view(s.merger)
	suppressed := s.st.suppressed(s.clock.Now())
	s.mu.Unlock()

	dec := s.detector.ShouldRegenerate(v.Messages, suppressed)
	s.logger.Debug("digest check",
		slog.String("reason", string(dec.Reason)), slog.Int("recent", dec.Recent))

	switch dec.Reason {
	case digest.ReasonRateLimited:
		s.notify(Notification{
			Kind:       KindDigestRateLimited,
			Message:    (&backend.RateLimitedError{RetryAfter: dec.RetryAfter}).Error(),
			Retryable:  true,
			RetryAfter: dec.RetryAfter,
		})
		return
	case digest.ReasonChanged:
	default:
		return
	}

	s.mu.Lock()
	if s.usable() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		sum, err := s.detector.Regenerate(s.ctx, v.Messages)
		s.recordDigest(s.ctx, err)

		var rl *backend.RateLimitedError
		switch {
		case err == nil:
			s.notify(Notification{
				Kind:    KindDigestUpdated,
				Message: fmt.Sprintf("Digest updated from %d recent messages.", sum.Messages),
			})
		case errors.As(err, &rl):
			s.notify(Notification{
				Kind:       KindDigestRateLimited,
				Message:    rl.Error(),
				Retryable:  true,
				RetryAfter: rl.RetryAfter,
			})
		case s.handleBackendError(err):
		default:
			s.logger.Warn("automatic digest regeneration failed", logging.Err(err))
			s.notify(Notification{
				Kind:      KindDigestFailed,
				Message:   fmt.Sprintf("Digest regeneration failed: %v", err),
				Retryable: backend.IsRetryable(err),
			})
		}
	}()
}

func (s *Session) recordDigest(ctx context.Context, err error) {
	var rl *backend.RateLimitedError
	status := instrumentation.StatusSuccess
	switch {
	case errors.As(err, &rl):
		status = instrumentation.StatusLimited
	case err != nil:
		status = instrumentation.StatusError
	}
	s.metrics.RecordDigestRegeneration(ctx, status)
}
