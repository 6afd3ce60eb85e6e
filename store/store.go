package store

import (
	"context"
	"errors"
	"time"

	"github.com/whisperlink/chat_backend/models"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
)

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RoomType        string    `json:"room_type"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	IsOnline        bool      `json:"is_online"`
}

// Store is the source of truth for rooms and message history. All
// writes are atomic: a message either commits with an assigned id or
// is not created at all.
type Store interface {
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	RoomExists(ctx context.Context, id string) (bool, error)

	// CreateMessage persists a message, assigning its id and
	// timestamp. It fails with ErrRoomNotFound if the room does not
	// exist at persistence time.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	// MarkDelivered transitions a message to delivered status and
	// stamps delivered-at. Returns the updated message.
	MarkDelivered(ctx context.Context, id uint, at time.Time) (*models.Message, error)

	// History returns a page of a room's messages in chronological
	// order (ascending id). Offset counts back from the newest
	// message. The bool result reports whether more pages exist.
	History(ctx context.Context, roomID string, limit, offset int) ([]models.Message, bool, error)

	// ChatList aggregates the rooms a user has sent messages to,
	// united with the well-known rooms, newest activity first.
	ChatList(ctx context.Context, userID uint, wellKnown []string) ([]ChatSummary, error)

	GetUser(ctx context.Context, id uint) (*models.User, error)
	SetUserPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error
}
