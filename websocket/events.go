package websocket

import (
	"encoding/json"
	"time"

	"github.com/whisperlink/chat_backend/models"
)

// Inbound event types.
const (
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventSendMessage      = "send_message"
	EventGetChats         = "get_chats"
	EventGetChatHistory   = "get_chat_history"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventMessageDelivered = "message_delivered"
)

// Outbound event types.
const (
	EventConnected           = "connected"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventRoomJoined          = "room_joined"
	EventRoomJoinError       = "room_join_error"
	EventRoomLeft            = "room_left"
	EventRoomLeaveError      = "room_leave_error"
	EventMessageSent         = "message_sent"
	EventNewMessage          = "new_message"
	EventMessageError        = "message_error"
	EventChatList            = "chat_list"
	EventChatListError       = "chat_list_error"
	EventChatHistory         = "chat_history"
	EventChatHistoryError    = "chat_history_error"
	EventTypingIndicator     = "typing_indicator"
	EventMessageStatusUpdate = "message_status_update"
)

// Envelope is the wire framing for every event in both directions.
// Inbound payloads stay raw until the event type selects the typed
// payload struct to validate against.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is an outbound envelope with a concrete payload.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Inbound payloads.

type JoinRoomPayload struct {
	UserID uint   `json:"user_id"`
	RoomID string `json:"room_id"`
}

type LeaveRoomPayload struct {
	UserID uint   `json:"user_id"`
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	SenderID        uint   `json:"sender_id"`
	RoomID          string `json:"room_id"`
	Content         string `json:"content"`
	MessageType     string `json:"message_type"`
	EncryptedAESKey string `json:"encrypted_aes_key"`
	IV              string `json:"iv"`
	IsEncrypted     bool   `json:"is_encrypted"`
}

type GetChatsPayload struct {
	UserID uint `json:"user_id"`
}

type GetChatHistoryPayload struct {
	UserID uint   `json:"user_id"`
	RoomID string `json:"room_id"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type TypingPayload struct {
	UserID uint   `json:"user_id"`
	RoomID string `json:"room_id"`
}

type MessageDeliveredPayload struct {
	MessageID uint `json:"message_id"`
	UserID    uint `json:"user_id"`
}

// Outbound payloads.

// ErrorPayload is the body of every *_error event.
type ErrorPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorPayload(message string) ErrorPayload {
	return ErrorPayload{Status: "error", Message: message}
}

type ConnectedPayload struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	UserID        uint   `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	PersonalRoom  string `json:"personal_room,omitempty"`
}

type PresencePayload struct {
	UserID    uint      `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomJoinedPayload struct {
	Status    string `json:"status"`
	RoomID    string `json:"room_id"`
	RoomName  string `json:"room_name"`
	UserCount int    `json:"user_count"`
}

type RoomLeftPayload struct {
	Status string `json:"status"`
	RoomID string `json:"room_id"`
}

type MessageSentPayload struct {
	Status    string    `json:"status"`
	MessageID uint      `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageView is the outbound shape of a persisted message. It
// carries message_id alongside id for client compatibility.
type MessageView struct {
	ID              uint       `json:"id"`
	MessageID       uint       `json:"message_id"`
	SenderID        uint       `json:"sender_id"`
	SenderName      string     `json:"sender_name,omitempty"`
	RoomID          string     `json:"room_id"`
	Content         string     `json:"content"`
	EncryptedAESKey string     `json:"encrypted_aes_key,omitempty"`
	IV              string     `json:"iv,omitempty"`
	IsEncrypted     bool       `json:"is_encrypted"`
	MessageType     string     `json:"message_type"`
	Status          string     `json:"status"`
	DeliveredAt     *time.Time `json:"delivered_at"`
	Timestamp       time.Time  `json:"timestamp"`
}

func viewOf(msg *models.Message, senderName string) MessageView {
	return MessageView{
		ID:              msg.ID,
		MessageID:       msg.ID,
		SenderID:        msg.SenderID,
		SenderName:      senderName,
		RoomID:          msg.RoomID,
		Content:         msg.Content,
		EncryptedAESKey: msg.EncryptedAESKey,
		IV:              msg.IV,
		IsEncrypted:     msg.IsEncrypted,
		MessageType:     msg.MessageType,
		Status:          msg.Status,
		DeliveredAt:     msg.DeliveredAt,
		Timestamp:       msg.CreatedAt,
	}
}

type ChatListPayload struct {
	Status string      `json:"status"`
	Chats  interface{} `json:"chats"`
}

type ChatHistoryPayload struct {
	Status   string        `json:"status"`
	RoomID   string        `json:"room_id"`
	Messages []MessageView `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type TypingIndicatorPayload struct {
	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name"`
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

type MessageStatusUpdatePayload struct {
	MessageID uint      `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// errorEventFor maps an inbound event to its typed error event.
func errorEventFor(eventType string) string {
	switch eventType {
	case EventJoinRoom:
		return EventRoomJoinError
	case EventLeaveRoom:
		return EventRoomLeaveError
	case EventGetChats:
		return EventChatListError
	case EventGetChatHistory:
		return EventChatHistoryError
	default:
		return EventMessageError
	}
}
