// Package accounts holds the explicitly constructed registry of per-account
// transport clients and session managers. It replaces hidden singletons:
// whoever needs the registry gets it injected.
package accounts

import (
	"fmt"
	"sync"

	"goatbot/internal/session"
	"goatbot/internal/xclient"
)

// Account pairs one transport client with its session manager.
type Account struct {
	Client  xclient.Client
	Session *session.Manager
}

// Registry maps account ids to their clients. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewRegistry() *Registry {
	return &Registry{accounts: make(map[string]*Account)}
}

// Put registers an account under id, failing if the id is taken.
func (r *Registry) Put(id string, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; ok {
		return fmt.Errorf("accounts: %s already registered", id)
	}
	r.accounts[id] = acct
	return nil
}

// Get returns the account for id.
func (r *Registry) Get(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	return acct, ok
}

// IDs returns the registered account ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		out = append(out, id)
	}
	return out
}
