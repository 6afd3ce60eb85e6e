package membership

import (
	"sync"
)

// MemoryManager keeps membership in process memory behind a single
// mutex. Contention has not been a blocker at the connection counts a
// single process serves.
type MemoryManager struct {
	directory RoomDirectory

	mu sync.RWMutex
	// roomID -> userID -> set of connIDs holding the membership
	rooms map[string]map[uint]map[string]struct{}
	// userID -> connID -> set of roomIDs, for disconnect cleanup
	conns map[uint]map[string]map[string]struct{}
}

func NewMemoryManager(directory RoomDirectory) *MemoryManager {
	return &MemoryManager{
		directory: directory,
		rooms:     make(map[string]map[uint]map[string]struct{}),
		conns:     make(map[uint]map[string]map[string]struct{}),
	}
}

func (m *MemoryManager) AddMember(userID uint, connID, roomID string) bool {
	if !m.directory.RoomExists(roomID) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.rooms[roomID]
	if !ok {
		users = make(map[uint]map[string]struct{})
		m.rooms[roomID] = users
	}
	refs, ok := users[userID]
	if !ok {
		refs = make(map[string]struct{})
		users[userID] = refs
	}
	refs[connID] = struct{}{}

	byConn, ok := m.conns[userID]
	if !ok {
		byConn = make(map[string]map[string]struct{})
		m.conns[userID] = byConn
	}
	roomSet, ok := byConn[connID]
	if !ok {
		roomSet = make(map[string]struct{})
		byConn[connID] = roomSet
	}
	roomSet[roomID] = struct{}{}

	return true
}

func (m *MemoryManager) RemoveMember(userID uint, connID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(userID, connID, roomID)
	return true
}

// removeLocked drops one connection's subscription and reports whether
// the user no longer holds any membership in the room.
func (m *MemoryManager) removeLocked(userID uint, connID, roomID string) bool {
	if byConn, ok := m.conns[userID]; ok {
		if roomSet, ok := byConn[connID]; ok {
			delete(roomSet, roomID)
			if len(roomSet) == 0 {
				delete(byConn, connID)
			}
		}
		if len(byConn) == 0 {
			delete(m.conns, userID)
		}
	}

	users, ok := m.rooms[roomID]
	if !ok {
		return true
	}
	refs, ok := users[userID]
	if !ok {
		return true
	}
	delete(refs, connID)
	if len(refs) > 0 {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.rooms, roomID)
	}
	return true
}

func (m *MemoryManager) DropConnection(userID uint, connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	vacated := []string{}
	byConn, ok := m.conns[userID]
	if !ok {
		return vacated
	}
	roomSet, ok := byConn[connID]
	if !ok {
		return vacated
	}
	for roomID := range roomSet {
		if m.removeLocked(userID, connID, roomID) {
			vacated = append(vacated, roomID)
		}
	}
	return vacated
}

func (m *MemoryManager) Members(roomID string) []uint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := []uint{}
	for userID := range m.rooms[roomID] {
		members = append(members, userID)
	}
	return members
}

func (m *MemoryManager) MemberCount(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomID])
}

func (m *MemoryManager) IsMember(userID uint, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = users[userID]
	return ok
}
