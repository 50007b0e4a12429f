package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub holds the broadcast groups: one per room ("room:<id>") and one per
// user notification channel ("user:<id>"). It is the only in-process state
// shared between connections.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]struct{}
	// live counts registered sockets per user across every group.
	live map[string]int
}

func NewHub() *Hub {
	return &Hub{groups: map[string]map[*Client]struct{}{}, live: map[string]int{}}
}

func roomGroup(roomID string) string { return "room:" + roomID }
func userGroup(userID string) string { return "user:" + userID }

// Register counts c as one of its user's live sockets.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live[c.userID]++
}

// Unregister undoes Register and returns how many sockets the user still has.
func (h *Hub) Unregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.live[c.userID] - 1
	if n <= 0 {
		delete(h.live, c.userID)
		return 0
	}
	h.live[c.userID] = n
	return n
}

func (h *Hub) Join(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = map[*Client]struct{}{}
		h.groups[group] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Broadcast enqueues msg on every member except exclude (which may be nil)
// and returns how many members accepted it. Slow members skip the frame.
func (h *Hub) Broadcast(group string, msg []byte, exclude *Client) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) Size(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// UserSockets counts userID's sockets currently in group.
func (h *Hub) UserSockets(group, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.groups[group] {
		if c.userID == userID {
			n++
		}
	}
	return n
}

// Live reports how many sockets userID holds open.
func (h *Hub) Live(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live[userID]
}

// CloseAll closes every grouped socket with 1001 and returns how many were
// asked to close. Used on shutdown.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	seen := map[*Client]struct{}{}
	for _, members := range h.groups {
		for c := range members {
			seen[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range seen {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	return len(seen)
}
