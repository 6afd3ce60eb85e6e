package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/whisperlink/chat_backend/database"
	"github.com/whisperlink/chat_backend/models"
)

type CreateRoomInput struct {
	// ID may be a human-chosen stable identifier like "general".
	// When omitted, one is generated.
	ID       string `json:"id"`
	Name     string `json:"name" binding:"required"`
	RoomType string `json:"room_type"`
}

// CreateRoom explicitly creates a chat room.
func CreateRoom(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomType := input.RoomType
	if roomType == "" {
		roomType = models.RoomTypeGroup
	}
	if roomType != models.RoomTypeGroup && roomType != models.RoomTypeDirect {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room_type must be group or direct"})
		return
	}

	room := models.Room{
		ID:        input.ID,
		Name:      input.Name,
		RoomType:  roomType,
		CreatedBy: userID,
		IsActive:  true,
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}

	if err := database.DB.Create(&room).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Room already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Room created successfully",
		"room":    room,
	})
}

// GetRoom returns a room by id.
func GetRoom(c *gin.Context) {
	var room models.Room
	if err := database.DB.First(&room, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}
