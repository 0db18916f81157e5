package signaling

import (
	"sync"

	"github.com/pkg/errors"
)

// Room capacity is structural: one sender plus one receiver.
const maxRoomPeers = 2

var (
	// ErrNotConnected is returned when an operation references an endpoint
	// with no tracked connection.
	ErrNotConnected = errors.New("endpoint is not connected")
	// ErrRoomFull is returned when a third endpoint attempts to enter a
	// two-party session room.
	ErrRoomFull = errors.New("session room is full")
)

// endpointInfo carries per-connection bookkeeping for one endpoint.
type endpointInfo struct {
	ip    string
	rooms map[string]bool
}

// Multiplexer tracks which endpoints are connected and which session rooms
// each of them has joined. Room membership doubles as relay authorization,
// so membership reads sit on the relay hot path. It holds pure data only:
// lifecycle decisions belong to the callers.
type Multiplexer struct {
	lock      sync.RWMutex
	endpoints map[string]*endpointInfo
	rooms     map[string]map[string]bool
}

// NewMultiplexer instantiates an empty connection/room tracker.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		endpoints: make(map[string]*endpointInfo),
		rooms:     make(map[string]map[string]bool),
	}
}

// Connect registers a newly accepted endpoint and its remote IP.
func (m *Multiplexer) Connect(endpointID, ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.endpoints[endpointID] = &endpointInfo{
		ip:    ip,
		rooms: make(map[string]bool),
	}
}

// Disconnect removes an endpoint and every room membership it holds.
// It returns the endpoint's IP and the session ids of the rooms it was in,
// so the caller can notify peers and unwind per-session state before the
// abuse guard's disconnect hook runs.
func (m *Multiplexer) Disconnect(endpointID string) (ip string, sessions []string, ok bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	info, ok := m.endpoints[endpointID]
	if !ok {
		return "", nil, false
	}
	for id := range info.rooms {
		sessions = append(sessions, id)
		if peers, ok := m.rooms[id]; ok {
			delete(peers, endpointID)
			if len(peers) == 0 {
				delete(m.rooms, id)
			}
		}
	}
	delete(m.endpoints, endpointID)
	return info.ip, sessions, true
}

// Connected reports whether the endpoint has a live connection.
func (m *Multiplexer) Connected(endpointID string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.endpoints[endpointID]
	return ok
}

// IP returns the remote address recorded for a connected endpoint.
func (m *Multiplexer) IP(endpointID string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	info, ok := m.endpoints[endpointID]
	if !ok {
		return "", false
	}
	return info.ip, true
}

// Join adds a connected endpoint to a session's room. Joining a room the
// endpoint is already in is a no-op.
func (m *Multiplexer) Join(sessionID, endpointID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	info, ok := m.endpoints[endpointID]
	if !ok {
		return errors.Wrapf(ErrNotConnected, "endpoint %s", endpointID)
	}
	peers, ok := m.rooms[sessionID]
	if !ok {
		peers = make(map[string]bool)
		m.rooms[sessionID] = peers
	}
	if peers[endpointID] {
		return nil
	}
	if len(peers) >= maxRoomPeers {
		return errors.Wrapf(ErrRoomFull, "session %s", sessionID)
	}
	peers[endpointID] = true
	info.rooms[sessionID] = true
	return nil
}

// Leave removes an endpoint from a session's room.
func (m *Multiplexer) Leave(sessionID, endpointID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if info, ok := m.endpoints[endpointID]; ok {
		delete(info.rooms, sessionID)
	}
	if peers, ok := m.rooms[sessionID]; ok {
		delete(peers, endpointID)
		if len(peers) == 0 {
			delete(m.rooms, sessionID)
		}
	}
}

// CloseRoom dissolves a session's room, detaching every member.
func (m *Multiplexer) CloseRoom(sessionID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for endpointID := range m.rooms[sessionID] {
		if info, ok := m.endpoints[endpointID]; ok {
			delete(info.rooms, sessionID)
		}
	}
	delete(m.rooms, sessionID)
}

// InRoom reports whether the endpoint is a member of the session's room.
func (m *Multiplexer) InRoom(sessionID, endpointID string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	peers, ok := m.rooms[sessionID]
	return ok && peers[endpointID]
}

// Peers returns the members of a session's room, excluding the given
// endpoint. Used to address the counterpart in a two-party room.
func (m *Multiplexer) Peers(sessionID, exceptEndpoint string) []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var peers []string
	for endpointID := range m.rooms[sessionID] {
		if endpointID != exceptEndpoint {
			peers = append(peers, endpointID)
		}
	}
	return peers
}

// Sessions returns the session ids of every room the endpoint has joined.
func (m *Multiplexer) Sessions(endpointID string) []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	info, ok := m.endpoints[endpointID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(info.rooms))
	for id := range info.rooms {
		ids = append(ids, id)
	}
	return ids
}

// NumConnected returns the number of endpoints with live connections.
func (m *Multiplexer) NumConnected() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.endpoints)
}

// NumRooms returns the number of session rooms with at least one member.
func (m *Multiplexer) NumRooms() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.rooms)
}
