package google

import (
	"sync"

	"golang.org/x/oauth2"
)

// persistingTokenSource writes a token back to disk whenever the wrapped
// source hands out a new access token.
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func newPersistingTokenSource(base oauth2.TokenSource, initial *oauth2.Token, path string) *persistingTokenSource {
	return &persistingTokenSource{
		base: oauth2.ReuseTokenSource(initial, base),
		path: path,
		last: initial.AccessToken,
	}
}

// Token implements oauth2.TokenSource.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		// Best effort.
		_ = writeToken(s.path, tok)
		s.last = tok.AccessToken
	}
	return tok, nil
}
