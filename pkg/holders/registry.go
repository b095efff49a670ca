package holders

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
)

// Registry errors surfaced to the join endpoint.
var (
	ErrNoActiveKeyword = errors.New("no active keyword")
	ErrKeywordMismatch = errors.New("keyword not found in message")
)

const keywordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewKeyword returns a fresh 4-character entry keyword.
func NewKeyword() string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = keywordAlphabet[rand.Intn(len(keywordAlphabet))]
	}
	return string(b)
}

// Registry tracks the active entry keyword and the wallets registered under
// it. It is reset at the start of each cycle.
type Registry struct {
	mu       sync.RWMutex
	keyword  string
	entrants map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{entrants: make(map[string]struct{})}
}

// Reset installs a new keyword and clears the entrant set. An empty keyword
// deactivates registration.
func (r *Registry) Reset(keyword string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyword = keyword
	r.entrants = make(map[string]struct{})
}

func (r *Registry) Keyword() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keyword
}

// Register adds owner to the entrant set if message contains the active
// keyword (case-insensitive). Holder verification is the caller's concern.
func (r *Registry) Register(owner, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyword == "" {
		return ErrNoActiveKeyword
	}
	if !strings.Contains(strings.ToLower(message), strings.ToLower(r.keyword)) {
		return ErrKeywordMismatch
	}
	r.entrants[owner] = struct{}{}
	return nil
}

// Entrants returns a snapshot of the registered wallets.
func (r *Registry) Entrants() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{}, len(r.entrants))
	for k := range r.entrants {
		out[k] = struct{}{}
	}
	return out
}

// Size returns the number of registered entrants.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entrants)
}
