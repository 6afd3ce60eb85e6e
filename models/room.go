package models

import (
	"time"
)

const (
	RoomTypeGroup  = "group"
	RoomTypeDirect = "direct"
)

type Room struct {
	ID        string    `gorm:"primaryKey;size:50" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	RoomType  string    `gorm:"size:20;not null;default:'group'" json:"room_type"`
	CreatedBy uint      `json:"created_by"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
