package mcp

import (
	"sort"
	"sync"
)

// SessionRegistry maps journey sessions to the MCP client session that opened
// them, so a disconnecting client can release what it owns.
type SessionRegistry struct {
	mu     sync.RWMutex
	owners map[string]string // journeySessionID → clientSessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{owners: make(map[string]string)}
}

// Register records clientID as the owner of journeyID. A later registration
// transfers ownership.
func (r *SessionRegistry) Register(clientID, journeyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[journeyID] = clientID
}

// OwnerOf returns the client owning journeyID, if any.
func (r *SessionRegistry) OwnerOf(journeyID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.owners[journeyID]
	return cid, ok
}

// Forget drops the mapping for one journey session.
func (r *SessionRegistry) Forget(journeyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, journeyID)
}

// Remove deletes every journey session owned by clientID and returns their ids
// in lexical order. Called when a client disconnects.
func (r *SessionRegistry) Remove(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []string
	for jid, cid := range r.owners {
		if cid == clientID {
			owned = append(owned, jid)
			delete(r.owners, jid)
		}
	}
	sort.Strings(owned)
	return owned
}
