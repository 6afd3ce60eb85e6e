package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/whisperlink/chat_backend/membership"
	"github.com/whisperlink/chat_backend/metrics"
	"github.com/whisperlink/chat_backend/models"
	"github.com/whisperlink/chat_backend/presence"
	"github.com/whisperlink/chat_backend/store"
)

const defaultStoreTimeout = 5 * time.Second

// Protocol validates inbound events, orchestrates membership,
// presence and the message store, and emits outbound events through
// the hub. Each handler returns an explicit list of effects (replies
// and broadcasts) which the dispatch loop applies, so emission order
// is deterministic and handlers are testable without a live socket.
type Protocol struct {
	store    store.Store
	members  membership.Manager
	presence *presence.Tracker
	hub      *Hub

	wellKnown     map[string]bool
	wellKnownList []string

	storeTimeout time.Duration

	// Per-room sequence locks held across persist+fan-out so that
	// delivery order matches message-id order within a room.
	seqMu   sync.Mutex
	roomSeq map[string]*sync.Mutex
}

func NewProtocol(st store.Store, members membership.Manager, tracker *presence.Tracker, hub *Hub, wellKnownRooms []string) *Protocol {
	wellKnown := make(map[string]bool, len(wellKnownRooms))
	for _, id := range wellKnownRooms {
		wellKnown[id] = true
	}
	return &Protocol{
		store:         st,
		members:       members,
		presence:      tracker,
		hub:           hub,
		wellKnown:     wellKnown,
		wellKnownList: wellKnownRooms,
		storeTimeout:  defaultStoreTimeout,
		roomSeq:       make(map[string]*sync.Mutex),
	}
}

// effect is one outbound consequence of handling an event.
type effect interface {
	apply(p *Protocol, c *Client)
}

type reply struct {
	event   string
	payload interface{}
}

func (e reply) apply(p *Protocol, c *Client) {
	p.hub.Send(c, e.event, e.payload)
}

type subscribe struct{ roomID string }

func (e subscribe) apply(p *Protocol, c *Client) {
	p.hub.Subscribe(c, e.roomID)
}

type unsubscribe struct{ roomID string }

func (e unsubscribe) apply(p *Protocol, c *Client) {
	p.hub.Unsubscribe(c, e.roomID)
}

type roomBroadcast struct {
	roomID  string
	event   string
	payload interface{}
	exclude uint
}

func (e roomBroadcast) apply(p *Protocol, c *Client) {
	if n := p.hub.Deliver(e.roomID, e.event, e.payload, e.exclude); n == 0 && e.event == EventNewMessage {
		log.Printf("no live recipients for %s in room %s", e.event, e.roomID)
	}
}

type userBroadcast struct {
	userID  uint
	event   string
	payload interface{}
}

func (e userBroadcast) apply(p *Protocol, c *Client) {
	p.hub.DeliverToUser(e.userID, e.event, e.payload)
}

func (p *Protocol) apply(c *Client, effects []effect) {
	for _, e := range effects {
		e.apply(p, c)
	}
}

func (p *Protocol) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.storeTimeout)
}

// HandleIncoming dispatches one inbound envelope. A failing handler
// never tears down the connection: panics are converted to a generic
// typed error event.
func (p *Protocol) HandleIncoming(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling %s: %v", env.Type, r)
			p.hub.Send(c, errorEventFor(env.Type), errorPayload("Internal server error"))
		}
	}()

	if !c.authenticated {
		p.hub.Send(c, errorEventFor(env.Type), errorPayload("authentication required"))
		return
	}

	switch env.Type {
	case EventJoinRoom:
		var pl JoinRoomPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleJoinRoom(c, pl))
	case EventLeaveRoom:
		var pl LeaveRoomPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleLeaveRoom(c, pl))
	case EventSendMessage:
		var pl SendMessagePayload
		if !p.decode(c, env, &pl) {
			return
		}
		if pl.RoomID != "" {
			unlock := p.lockRoom(pl.RoomID)
			defer unlock()
		}
		p.apply(c, p.handleSendMessage(c, pl))
	case EventGetChats:
		var pl GetChatsPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleGetChats(pl))
	case EventGetChatHistory:
		var pl GetChatHistoryPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleGetChatHistory(pl))
	case EventTypingStart:
		var pl TypingPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleTyping(pl, true))
	case EventTypingStop:
		var pl TypingPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleTyping(pl, false))
	case EventMessageDelivered:
		var pl MessageDeliveredPayload
		if !p.decode(c, env, &pl) {
			return
		}
		p.apply(c, p.handleMessageDelivered(pl))
	default:
		log.Printf("unknown event type %q from user %d", env.Type, c.userID)
	}
}

// decode unmarshals the typed payload, reporting a validation error
// to the client when the payload is malformed.
func (p *Protocol) decode(c *Client, env Envelope, v interface{}) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		p.hub.Send(c, errorEventFor(env.Type), errorPayload("invalid payload"))
		return false
	}
	return true
}

// HandleConnect runs the connect transition for a freshly registered
// connection: presence goes online on the user's first connection and
// a user_online event reaches everyone else.
func (p *Protocol) HandleConnect(c *Client) {
	if !c.authenticated {
		p.hub.Send(c, EventConnected, ConnectedPayload{Status: "connected", Authenticated: false})
		return
	}

	now := time.Now().UTC()
	name := p.userName(c.userID)
	first := p.presence.ConnOpened(c.userID)
	if first {
		ctx, cancel := p.storeCtx()
		if err := p.store.SetUserPresence(ctx, c.userID, true, now); err != nil {
			log.Printf("error persisting online status for user %d: %v", c.userID, err)
		}
		cancel()
	}

	p.hub.Send(c, EventConnected, ConnectedPayload{
		Status:        "connected",
		Authenticated: true,
		UserID:        c.userID,
		UserName:      name,
		PersonalRoom:  fmt.Sprintf("user_%d", c.userID),
	})

	if first {
		p.hub.BroadcastAll(EventUserOnline, PresencePayload{
			UserID:    c.userID,
			UserName:  name,
			Timestamp: now,
		}, c.userID)
	}
}

// HandleDisconnect cleans up a closed connection: every room
// subscription is dropped and, when this was the user's last active
// connection, presence transitions to offline and user_offline is
// broadcast.
func (p *Protocol) HandleDisconnect(c *Client) {
	if !c.authenticated {
		return
	}

	p.members.DropConnection(c.userID, c.connID)

	if p.presence.ConnClosed(c.userID) {
		now := time.Now().UTC()
		ctx, cancel := p.storeCtx()
		if err := p.store.SetUserPresence(ctx, c.userID, false, now); err != nil {
			log.Printf("error persisting offline status for user %d: %v", c.userID, err)
		}
		cancel()

		p.hub.BroadcastAll(EventUserOffline, PresencePayload{
			UserID:    c.userID,
			UserName:  p.userName(c.userID),
			Timestamp: now,
		}, c.userID)
	}
}

func (p *Protocol) handleJoinRoom(c *Client, pl JoinRoomPayload) []effect {
	if pl.UserID == 0 || pl.RoomID == "" {
		return []effect{reply{EventRoomJoinError, errorPayload("user_id and room_id are required")}}
	}

	ctx, cancel := p.storeCtx()
	defer cancel()

	room, err := p.store.GetRoom(ctx, pl.RoomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		if !p.wellKnown[pl.RoomID] {
			return []effect{reply{EventRoomJoinError, errorPayload(fmt.Sprintf("Room %s does not exist", pl.RoomID))}}
		}
		room, err = p.provisionRoom(ctx, pl.RoomID, pl.UserID)
	}
	if err != nil {
		log.Printf("error resolving room %s: %v", pl.RoomID, err)
		return []effect{reply{EventRoomJoinError, errorPayload("Failed to join room")}}
	}

	if !p.members.AddMember(pl.UserID, c.connID, pl.RoomID) {
		return []effect{reply{EventRoomJoinError, errorPayload("Failed to join room")}}
	}
	p.presence.Touch(pl.UserID)

	return []effect{
		subscribe{pl.RoomID},
		reply{EventRoomJoined, RoomJoinedPayload{
			Status:    "joined",
			RoomID:    pl.RoomID,
			RoomName:  room.Name,
			UserCount: p.members.MemberCount(pl.RoomID),
		}},
	}
}

// provisionRoom lazily creates a well-known room, tolerating a lost
// creation race with a concurrent join.
func (p *Protocol) provisionRoom(ctx context.Context, roomID string, creator uint) (*models.Room, error) {
	room := &models.Room{
		ID:        roomID,
		Name:      wellKnownRoomName(roomID),
		RoomType:  models.RoomTypeGroup,
		CreatedBy: creator,
		IsActive:  true,
	}
	if err := p.store.CreateRoom(ctx, room); err != nil {
		return p.store.GetRoom(ctx, roomID)
	}
	return room, nil
}

func wellKnownRoomName(roomID string) string {
	if roomID == "general" {
		return "General Chat"
	}
	words := strings.Split(strings.ReplaceAll(roomID, "-", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (p *Protocol) handleLeaveRoom(c *Client, pl LeaveRoomPayload) []effect {
	if pl.UserID == 0 || pl.RoomID == "" {
		return []effect{reply{EventRoomLeaveError, errorPayload("user_id and room_id are required")}}
	}

	// Leaving a room you are not in is a no-op, not an error.
	p.members.RemoveMember(pl.UserID, c.connID, pl.RoomID)
	p.presence.Touch(pl.UserID)

	return []effect{
		unsubscribe{pl.RoomID},
		reply{EventRoomLeft, RoomLeftPayload{Status: "left", RoomID: pl.RoomID}},
	}
}

func (p *Protocol) handleSendMessage(c *Client, pl SendMessagePayload) []effect {
	if pl.SenderID == 0 || pl.RoomID == "" || pl.Content == "" {
		return []effect{reply{EventMessageError, errorPayload("sender_id, room_id, and content are required")}}
	}

	if !p.members.IsMember(pl.SenderID, pl.RoomID) {
		return []effect{reply{EventMessageError, errorPayload("User is not in the specified room")}}
	}

	messageType := pl.MessageType
	if messageType == "" {
		messageType = "text"
	}

	msg := &models.Message{
		SenderID:        pl.SenderID,
		RoomID:          pl.RoomID,
		Content:         pl.Content,
		EncryptedAESKey: pl.EncryptedAESKey,
		IV:              pl.IV,
		IsEncrypted:     pl.IsEncrypted,
		MessageType:     messageType,
		Status:          models.MessageStatusSent,
	}

	ctx, cancel := p.storeCtx()
	defer cancel()

	if err := p.store.CreateMessage(ctx, msg); err != nil {
		log.Printf("error saving message from user %d to room %s: %v", pl.SenderID, pl.RoomID, err)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return []effect{reply{EventMessageError, errorPayload("Message store timed out, please retry")}}
		case errors.Is(err, store.ErrRoomNotFound):
			return []effect{reply{EventMessageError, errorPayload("Room does not exist")}}
		default:
			return []effect{reply{EventMessageError, errorPayload("Failed to send message")}}
		}
	}
	metrics.MessagesPersisted.Inc()
	p.presence.Touch(pl.SenderID)

	// The message is durably stored at this point; fan-out failures
	// are logged, never surfaced to the sender.
	return []effect{
		reply{EventMessageSent, MessageSentPayload{
			Status:    "sent",
			MessageID: msg.ID,
			Timestamp: msg.CreatedAt,
		}},
		roomBroadcast{
			roomID:  pl.RoomID,
			event:   EventNewMessage,
			payload: viewOf(msg, p.userName(pl.SenderID)),
			exclude: pl.SenderID,
		},
	}
}

func (p *Protocol) handleGetChats(pl GetChatsPayload) []effect {
	if pl.UserID == 0 {
		return []effect{reply{EventChatListError, errorPayload("user_id is required")}}
	}

	ctx, cancel := p.storeCtx()
	defer cancel()

	chats, err := p.store.ChatList(ctx, pl.UserID, p.wellKnownList)
	if err != nil {
		log.Printf("error building chat list for user %d: %v", pl.UserID, err)
		return []effect{reply{EventChatListError, errorPayload("Failed to retrieve chat list")}}
	}

	return []effect{reply{EventChatList, ChatListPayload{Status: "success", Chats: chats}}}
}

func (p *Protocol) handleGetChatHistory(pl GetChatHistoryPayload) []effect {
	if pl.UserID == 0 || pl.RoomID == "" {
		return []effect{reply{EventChatHistoryError, errorPayload("user_id and room_id are required")}}
	}

	limit := pl.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := pl.Offset
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := p.storeCtx()
	defer cancel()

	messages, hasMore, err := p.store.History(ctx, pl.RoomID, limit, offset)
	if err != nil {
		log.Printf("error fetching history for room %s: %v", pl.RoomID, err)
		return []effect{reply{EventChatHistoryError, errorPayload("Failed to retrieve chat history")}}
	}

	names := make(map[uint]string)
	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		senderID := messages[i].SenderID
		name, ok := names[senderID]
		if !ok {
			name = p.userName(senderID)
			names[senderID] = name
		}
		views = append(views, viewOf(&messages[i], name))
	}

	return []effect{reply{EventChatHistory, ChatHistoryPayload{
		Status:   "success",
		RoomID:   pl.RoomID,
		Messages: views,
		HasMore:  hasMore,
	}}}
}

// handleTyping relays ephemeral typing signals; nothing is persisted
// and an unresolvable user drops the event silently.
func (p *Protocol) handleTyping(pl TypingPayload, isTyping bool) []effect {
	if pl.UserID == 0 || pl.RoomID == "" {
		return nil
	}

	ctx, cancel := p.storeCtx()
	defer cancel()

	user, err := p.store.GetUser(ctx, pl.UserID)
	if err != nil {
		return nil
	}

	return []effect{roomBroadcast{
		roomID: pl.RoomID,
		event:  EventTypingIndicator,
		payload: TypingIndicatorPayload{
			UserID:   pl.UserID,
			UserName: user.Name(),
			RoomID:   pl.RoomID,
			IsTyping: isTyping,
		},
		exclude: pl.UserID,
	}}
}

// handleMessageDelivered stamps the message's global delivery status
// and notifies the sender's personal channel. Delivery is tracked per
// message, not per recipient.
func (p *Protocol) handleMessageDelivered(pl MessageDeliveredPayload) []effect {
	if pl.MessageID == 0 || pl.UserID == 0 {
		return nil
	}

	ctx, cancel := p.storeCtx()
	defer cancel()

	now := time.Now().UTC()
	msg, err := p.store.MarkDelivered(ctx, pl.MessageID, now)
	if err != nil {
		if !errors.Is(err, store.ErrMessageNotFound) {
			log.Printf("error marking message %d delivered: %v", pl.MessageID, err)
		}
		return nil
	}
	p.presence.Touch(pl.UserID)

	return []effect{userBroadcast{
		userID: msg.SenderID,
		event:  EventMessageStatusUpdate,
		payload: MessageStatusUpdatePayload{
			MessageID: msg.ID,
			Status:    models.MessageStatusDelivered,
			Timestamp: now,
		},
	}}
}

// userName resolves a user's display name, best effort.
func (p *Protocol) userName(userID uint) string {
	ctx, cancel := p.storeCtx()
	defer cancel()

	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name()
}

// lockRoom serializes persist+fan-out for one room.
func (p *Protocol) lockRoom(roomID string) func() {
	p.seqMu.Lock()
	mu, ok := p.roomSeq[roomID]
	if !ok {
		mu = &sync.Mutex{}
		p.roomSeq[roomID] = mu
	}
	p.seqMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
