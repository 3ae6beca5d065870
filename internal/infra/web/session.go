package web

import (
	"context"
	"net"
	"net/http"
	"sync"

	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/wizard"
)

type sessionKey struct{}

// withWizardSession makes sure every wizard request carries a session id.
func (h *Handlers) withWizardSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.auth.EnsureWizardSession(w, r)
		if err != nil {
			logging.With(r.Context(), h.log).Error().Err(err).Msg("wizard session not issued")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		ctx = logging.WithSessID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// pollerSet tracks the live status streams per user so a new connection
// can wake them.
type pollerSet struct {
	mu     sync.Mutex
	byUser map[string]map[*wizard.Poller]struct{}
}

func newPollerSet() *pollerSet {
	return &pollerSet{byUser: map[string]map[*wizard.Poller]struct{}{}}
}

func (s *pollerSet) add(userID string, p *wizard.Poller) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.byUser[userID]
	if !ok {
		set = map[*wizard.Poller]struct{}{}
		s.byUser[userID] = set
	}
	set[p] = struct{}{}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(set, p)
		if len(set) == 0 {
			delete(s.byUser, userID)
		}
	}
}

func (s *pollerSet) kick(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.byUser[userID] {
		p.Kick()
	}
}

func (s *pollerSet) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser[userID])
}
