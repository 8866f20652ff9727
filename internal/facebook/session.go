package facebook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
)

var (
	// ErrNoSession is returned when the session was never initialized or was cleared
	ErrNoSession = errors.New("no active facebook session")
	// ErrPageNotFound is returned for pages the user does not manage
	ErrPageNotFound = errors.New("page not managed by this account")
)

// PageLister resolves the pages a user token can act for
type PageLister interface {
	ListPages(ctx context.Context, userToken string) ([]models.Destination, error)
}

// Session holds the signed-in user token and the page destinations it unlocks.
// It is created on login and cleared on logout or when the token is rejected.
type Session struct {
	lister PageLister
	log    *logger.Logger

	mu        sync.RWMutex
	userToken string
	pages     map[string]models.Destination
	lastErr   error
}

// NewSession creates an empty session
func NewSession(lister PageLister, log *logger.Logger) *Session {
	return &Session{
		lister: lister,
		log:    log.WithComponent("session"),
	}
}

// Init loads the user's pages with the given token
func (s *Session) Init(ctx context.Context, userToken string) error {
	if userToken == "" {
		return ErrNotAuthenticated
	}
	pages, err := s.lister.ListPages(ctx, userToken)
	if err != nil {
		return err
	}

	byID := make(map[string]models.Destination, len(pages))
	for _, p := range pages {
		byID[p.ID] = p
	}

	s.mu.Lock()
	s.userToken = userToken
	s.pages = byID
	s.lastErr = nil
	s.mu.Unlock()

	s.log.Info().Int("pages", len(pages)).Msg("Session initialized")
	return nil
}

// Clear drops the token and all page credentials
func (s *Session) Clear() {
	s.mu.Lock()
	s.userToken = ""
	s.pages = nil
	s.mu.Unlock()
}

// Invalidate clears the session after the remote side rejected its credentials
func (s *Session) Invalidate(reason error) {
	s.mu.Lock()
	s.userToken = ""
	s.pages = nil
	s.lastErr = reason
	s.mu.Unlock()

	s.log.Warn().Err(reason).Msg("Session invalidated, re-authentication required")
}

// Active reports whether the session holds a token
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userToken != ""
}

// LastError returns why the session was last invalidated
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Destination returns the page with its page token
func (s *Session) Destination(pageID string) (models.Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userToken == "" {
		return models.Destination{}, ErrNoSession
	}
	p, ok := s.pages[pageID]
	if !ok {
		return models.Destination{}, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	return p, nil
}

// Pages lists the managed pages by name
func (s *Session) Pages() []models.Destination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Destination, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
