package membership

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 3 * time.Second

// RedisManager keeps membership in a Redis registry so membership
// state can live outside process memory without changing the event
// handler. The semantics match MemoryManager: refcounted per
// (user, connection), derived user-level views.
//
// Keys:
//
//	membership:room:<roomID>        set of "<userID>:<connID>"
//	membership:conn:<userID>:<connID>  set of roomIDs
type RedisManager struct {
	client    *redis.Client
	directory RoomDirectory
}

func NewRedisManager(client *redis.Client, directory RoomDirectory) *RedisManager {
	return &RedisManager{client: client, directory: directory}
}

func roomKey(roomID string) string { return "membership:room:" + roomID }

func connKey(userID uint, connID string) string {
	return fmt.Sprintf("membership:conn:%d:%s", userID, connID)
}

func memberRef(userID uint, connID string) string {
	return fmt.Sprintf("%d:%s", userID, connID)
}

func (m *RedisManager) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

func (m *RedisManager) AddMember(userID uint, connID, roomID string) bool {
	if !m.directory.RoomExists(roomID) {
		return false
	}

	ctx, cancel := m.ctx()
	defer cancel()

	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, roomKey(roomID), memberRef(userID, connID))
	pipe.SAdd(ctx, connKey(userID, connID), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("membership: redis add failed for user %d room %s: %v", userID, roomID, err)
		return false
	}
	return true
}

func (m *RedisManager) RemoveMember(userID uint, connID, roomID string) bool {
	ctx, cancel := m.ctx()
	defer cancel()

	pipe := m.client.TxPipeline()
	pipe.SRem(ctx, roomKey(roomID), memberRef(userID, connID))
	pipe.SRem(ctx, connKey(userID, connID), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("membership: redis remove failed for user %d room %s: %v", userID, roomID, err)
	}
	return true
}

func (m *RedisManager) DropConnection(userID uint, connID string) []string {
	ctx, cancel := m.ctx()
	defer cancel()

	vacated := []string{}
	roomIDs, err := m.client.SMembers(ctx, connKey(userID, connID)).Result()
	if err != nil {
		log.Printf("membership: redis drop failed for user %d conn %s: %v", userID, connID, err)
		return vacated
	}

	for _, roomID := range roomIDs {
		m.RemoveMember(userID, connID, roomID)
		if !m.IsMember(userID, roomID) {
			vacated = append(vacated, roomID)
		}
	}

	delCtx, delCancel := m.ctx()
	defer delCancel()
	if err := m.client.Del(delCtx, connKey(userID, connID)).Err(); err != nil {
		log.Printf("membership: redis conn key cleanup failed for user %d: %v", userID, err)
	}
	return vacated
}

func (m *RedisManager) Members(roomID string) []uint {
	ctx, cancel := m.ctx()
	defer cancel()

	members := []uint{}
	refs, err := m.client.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		log.Printf("membership: redis members lookup failed for room %s: %v", roomID, err)
		return members
	}

	seen := make(map[uint]struct{}, len(refs))
	for _, ref := range refs {
		userID, ok := parseMemberRef(ref)
		if !ok {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		members = append(members, userID)
	}
	return members
}

func (m *RedisManager) MemberCount(roomID string) int {
	return len(m.Members(roomID))
}

func (m *RedisManager) IsMember(userID uint, roomID string) bool {
	ctx, cancel := m.ctx()
	defer cancel()

	refs, err := m.client.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		log.Printf("membership: redis member check failed for room %s: %v", roomID, err)
		return false
	}
	prefix := strconv.FormatUint(uint64(userID), 10) + ":"
	for _, ref := range refs {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

func parseMemberRef(ref string) (uint, bool) {
	idx := strings.IndexByte(ref, ':')
	if idx <= 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(ref[:idx], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
