package models

import (
	"time"
)

const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Message is immutable once created except for the status and
// delivered-at transitions. Content and the encryption fields are
// opaque to the relay.
type Message struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	SenderID        uint       `gorm:"not null;index" json:"sender_id"`
	RoomID          string     `gorm:"size:50;not null;index" json:"room_id"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	EncryptedAESKey string     `gorm:"type:text" json:"encrypted_aes_key,omitempty"`
	IV              string     `gorm:"size:255" json:"iv,omitempty"`
	IsEncrypted     bool       `gorm:"not null;default:false" json:"is_encrypted"`
	MessageType     string     `gorm:"size:20;not null;default:'text'" json:"message_type"`
	Status          string     `gorm:"size:20;not null;default:'sent'" json:"status"`
	DeliveredAt     *time.Time `json:"delivered_at"`
	CreatedAt       time.Time  `json:"timestamp"`
}
