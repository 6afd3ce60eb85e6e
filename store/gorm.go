package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/whisperlink/chat_backend/models"
	"gorm.io/gorm"
)

// GormStore implements Store on a relational database through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (s *GormStore) CreateRoom(ctx context.Context, room *models.Room) error {
	return s.db.WithContext(ctx).Create(room).Error
}

func (s *GormStore) RoomExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (s *GormStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("id = ?", msg.RoomID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrRoomNotFound
		}
		return tx.Create(msg).Error
	})
}

func (s *GormStore) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (s *GormStore) MarkDelivered(ctx context.Context, id uint, at time.Time) (*models.Message, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"status":       models.MessageStatusDelivered,
		"delivered_at": at,
	}
	if err := s.db.WithContext(ctx).Model(msg).Updates(updates).Error; err != nil {
		return nil, err
	}
	msg.Status = models.MessageStatusDelivered
	msg.DeliveredAt = &at
	return msg, nil
}

func (s *GormStore) History(ctx context.Context, roomID string, limit, offset int) ([]models.Message, bool, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, false, err
	}

	// Reverse the newest-first page into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	hasMore := len(messages) == limit && limit > 0
	return messages, hasMore, nil
}

func (s *GormStore) ChatList(ctx context.Context, userID uint, wellKnown []string) ([]ChatSummary, error) {
	db := s.db.WithContext(ctx)

	// Rooms the user has ever sent a message to.
	var sentRoomIDs []string
	if err := db.Model(&models.Message{}).
		Where("sender_id = ?", userID).
		Distinct("room_id").
		Pluck("room_id", &sentRoomIDs).Error; err != nil {
		return nil, err
	}

	ids := append([]string{}, sentRoomIDs...)
	ids = append(ids, wellKnown...)

	var rooms []models.Room
	if err := db.Where("id IN ?", ids).Find(&rooms).Error; err != nil {
		return nil, err
	}

	chats := make([]ChatSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := ChatSummary{
			ID:              room.ID,
			Name:            room.Name,
			RoomType:        room.RoomType,
			LastMessage:     "No messages yet",
			LastMessageTime: room.CreatedAt,
			UnreadCount:     0,
			IsOnline:        true,
		}

		var last models.Message
		err := db.Where("room_id = ?", room.ID).Order("id DESC").First(&last).Error
		if err == nil {
			summary.LastMessage = last.Content
			summary.LastMessageTime = last.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		chats = append(chats, summary)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].LastMessageTime.After(chats[j].LastMessageTime)
	})
	return chats, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) SetUserPresence(ctx context.Context, userID uint, online bool, lastSeen time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": lastSeen,
		}).Error
}
