// Package membership tracks which connected users are currently
// subscribed to which rooms. Membership is ephemeral: it is scoped to
// the lifetime of the process (or the backing registry) and does not
// survive restarts.
//
// Membership is refcounted per (user, connection) pair: a user with
// several devices stays a member of a room until the last of its
// connections has left it.
package membership

// RoomDirectory reports whether a room currently exists. The manager
// refuses to add members to unknown rooms.
type RoomDirectory interface {
	RoomExists(roomID string) bool
}

// RoomDirectoryFunc adapts a function to the RoomDirectory interface.
type RoomDirectoryFunc func(roomID string) bool

func (f RoomDirectoryFunc) RoomExists(roomID string) bool { return f(roomID) }

// Manager is the room membership registry shared by all connections.
// Implementations must be safe for concurrent use.
type Manager interface {
	// AddMember subscribes a user's connection to a room. It is
	// idempotent and returns false only when the room does not exist.
	AddMember(userID uint, connID, roomID string) bool

	// RemoveMember drops a connection's subscription to a room.
	// Removing a non-member is a no-op returning true. The user
	// remains a member while any other of its connections is
	// subscribed.
	RemoveMember(userID uint, connID, roomID string) bool

	// DropConnection removes every subscription held by a connection
	// and returns the rooms in which the user no longer holds any
	// membership.
	DropConnection(userID uint, connID string) []string

	// Members returns a snapshot of the user ids currently in a room.
	// Never nil; empty for unknown or empty rooms.
	Members(roomID string) []uint

	// MemberCount returns the number of distinct users in a room.
	MemberCount(roomID string) int

	IsMember(userID uint, roomID string) bool
}
