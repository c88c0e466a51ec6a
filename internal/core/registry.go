package core

import "sync"

// Registry maps a user identity to the set of live sessions bound to it.
// It lives in memory only and is repopulated as clients reconnect and join.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Client]struct{}
	owners   map[*Client]int64
	closed   map[*Client]struct{} // unregistered, worker may still be running
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]map[*Client]struct{}),
		owners:   make(map[*Client]int64),
		closed:   make(map[*Client]struct{}),
	}
}

// Register binds a client to userID. Registering the same pair twice is a no-op;
// a client already bound to another identity is moved. A client that was
// unregistered is refused until Forget releases it.
func (r *Registry) Register(userID int64, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.closed[c]; gone {
		return false
	}
	if prev, ok := r.owners[c]; ok {
		if prev == userID {
			return true
		}
		r.removeLocked(prev, c)
	}

	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.sessions[userID] = set
	}
	set[c] = struct{}{}
	r.owners[c] = userID
	return true
}

// Unregister removes the client from whichever identity holds it.
// Returns the identity it was bound to, if any.
func (r *Registry) Unregister(c *Client) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed[c] = struct{}{}
	userID, ok := r.owners[c]
	if !ok {
		return 0, false
	}
	r.removeLocked(userID, c)
	return userID, true
}

// Forget drops the unregistered marker of c. Call it once nothing can issue
// a join for c anymore.
func (r *Registry) Forget(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.closed, c)
}

func (r *Registry) removeLocked(userID int64, c *Client) {
	delete(r.owners, c)
	if set, ok := r.sessions[userID]; ok {
		delete(set, c)
		// Drop empty sets so offline identities do not accumulate.
		if len(set) == 0 {
			delete(r.sessions, userID)
		}
	}
}

// ClientsFor returns a snapshot of the live sessions of userID.
func (r *Registry) ClientsFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[userID]
	if len(set) == 0 {
		return nil
	}
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// IdentityOf returns the identity the client is bound to.
func (r *Registry) IdentityOf(c *Client) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.owners[c]
	return userID, ok
}

// Online reports whether userID has at least one live session.
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions[userID]) > 0
}

// Stats returns the number of online identities and live sessions.
func (r *Registry) Stats() (identities, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions), len(r.owners)
}
