package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hbl306/phongtro57-chat/internal/logger"
	"github.com/hbl306/phongtro57-chat/internal/models"
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	chatservice "github.com/hbl306/phongtro57-chat/internal/services/chat"
	"github.com/hbl306/phongtro57-chat/internal/services/dto"
	"github.com/hbl306/phongtro57-chat/pkg/apperrors"
)

// Room-scoped actions a connection may request.
const (
	ActionJoin  = "conversation:join"
	ActionLeave = "conversation:leave"
	ActionSend  = "message:send"
	ActionRead  = "read:mark"
)

// Broadcast events pushed to room members.
const (
	EventAck        = "ack"
	EventMessageNew = "message:new"
	EventReadUpdate = "read:update"
	EventInbox      = "inbox:update"
)

// Envelope is the single incoming frame shape. One canonical field name per
// concept; unknown actions are nacked, never guessed at.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type roomRequest struct {
	ConversationID string `json:"conversation_id"`
}

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
	Content        string `json:"content"`
}

type Ack struct {
	Event  string              `json:"event"`
	Action string              `json:"action"`
	OK     bool                `json:"ok"`
	Error  apperrors.ErrorCode `json:"error,omitempty"`
}

type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type messageNewPayload struct {
	ConversationID string              `json:"conversation_id"`
	Message        dto.MessageResponse `json:"message"`
}

type readUpdatePayload struct {
	ConversationID string    `json:"conversation_id"`
	WhoID          string    `json:"who_id"`
	WhoRole        string    `json:"who_role"`
	ReadAt         time.Time `json:"read_at"`
}

type inboxUpdatePayload struct {
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
}

// Client is one authenticated websocket connection. A user may hold several
// at once (multi-tab); each is kept consistent through room broadcast only.
type Client struct {
	Identity *models.Identity

	conn *websocket.Conn
	send chan any
	done chan struct{}

	// room membership, guarded by hub.mu
	rooms map[string]struct{}

	hub         *Hub
	chatService *chatservice.ChatService

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, ident *models.Identity, hub *Hub, chatSvc *chatservice.ChatService) *Client {
	return &Client{
		Identity:    ident,
		conn:        conn,
		send:        make(chan any, 256),
		done:        make(chan struct{}),
		rooms:       make(map[string]struct{}),
		hub:         hub,
		chatService: chatSvc,
	}
}

// Close tears the connection down exactly once and releases every room the
// connection was in, the same as an explicit leave for each of them.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.RemoveClient(c)
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		logger.Debug("ws client disconnected", "user_id", c.Identity.UserID)
	})
}

func (c *Client) readPump() {
	defer c.Close()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Debug("ws frame rejected", "user_id", c.Identity.UserID, "error", err)
			continue
		}

		c.handleMessage(env)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleMessage dispatches one request and always answers with an ack.
// Business-rule failures nack the calling connection only; the connection
// stays open and usable.
func (c *Client) handleMessage(env Envelope) {
	switch env.Action {
	case ActionJoin:
		c.handleJoin(env)
	case ActionLeave:
		c.handleLeave(env)
	case ActionSend:
		c.handleSend(env)
	case ActionRead:
		c.handleRead(env)
	default:
		c.nack(env.Action, apperrors.CodeValidationFailed)
	}
}

func (c *Client) handleJoin(env Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.nack(ActionJoin, apperrors.CodeValidationFailed)
		return
	}

	conv, err := c.chatService.Join(c.Identity, req.ConversationID)
	if err != nil {
		c.fail(ActionJoin, err)
		return
	}

	c.hub.Join(ConversationRoom(conv.ID), c)
	c.ack(ActionJoin)
}

func (c *Client) handleLeave(env Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.nack(ActionLeave, apperrors.CodeValidationFailed)
		return
	}

	c.hub.Leave(ConversationRoom(req.ConversationID), c)
	c.ack(ActionLeave)
}

func (c *Client) handleSend(env Envelope) {
	var req sendRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.nack(ActionSend, apperrors.CodeValidationFailed)
		return
	}

	// Append and broadcast under the room's publish lock: the order messages
	// are stored in is the order every room member receives them, even with
	// concurrent senders.
	var sendErr error
	c.hub.PublishOrdered(ConversationRoom(req.ConversationID), func() {
		msg, fanOut, err := c.chatService.SendMessage(c.Identity, req.ConversationID, req.Type, req.Content)
		if err != nil {
			sendErr = err
			return
		}
		c.ack(ActionSend)

		c.hub.Broadcast(ConversationRoom(msg.ConversationID), Event{
			Event: EventMessageNew,
			Data: messageNewPayload{
				ConversationID: msg.ConversationID,
				Message: dto.MessageResponse{
					ID:             msg.ID,
					ConversationID: msg.ConversationID,
					SenderID:       msg.SenderID,
					SenderRole:     string(msg.SenderRole),
					Type:           string(msg.Type),
					Content:        msg.Content,
					CreatedAt:      msg.CreatedAt,
				},
			},
		})
		c.signalInbox(fanOut)
	})
	if sendErr != nil {
		c.fail(ActionSend, sendErr)
	}
}

func (c *Client) handleRead(env Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.nack(ActionRead, apperrors.CodeValidationFailed)
		return
	}

	var readErr error
	c.hub.PublishOrdered(ConversationRoom(req.ConversationID), func() {
		readAt, fanOut, err := c.chatService.MarkRead(c.Identity, req.ConversationID)
		if err != nil {
			readErr = err
			return
		}
		c.ack(ActionRead)

		whoRole := string(modelChat.SenderRoleUser)
		if c.Identity.Role.IsAgent() {
			whoRole = string(modelChat.SenderRoleAgent)
		}
		c.hub.Broadcast(ConversationRoom(req.ConversationID), Event{
			Event: EventReadUpdate,
			Data: readUpdatePayload{
				ConversationID: req.ConversationID,
				WhoID:          c.Identity.UserID,
				WhoRole:        whoRole,
				ReadAt:         readAt,
			},
		})
		c.signalInbox(fanOut)
	})
	if readErr != nil {
		c.fail(ActionRead, readErr)
	}
}

// signalInbox emits the coarse inbox:update signal: to the shared agents
// room for support threads, and to each affected user's inbox room.
// Receivers re-fetch; the signal carries no message payload.
func (c *Client) signalInbox(fanOut *chatservice.FanOut) {
	event := Event{
		Event: EventInbox,
		Data: inboxUpdatePayload{
			ConversationID: fanOut.ConversationID,
			Type:           string(fanOut.Kind),
		},
	}
	if fanOut.NotifyAgents {
		c.hub.Broadcast(agentsRoom, event)
	}
	for _, userID := range fanOut.InboxUserIDs {
		c.hub.Broadcast(UserRoom(userID), event)
	}
}

func (c *Client) ack(action string) {
	c.push(Ack{Event: EventAck, Action: action, OK: true})
}

func (c *Client) nack(action string, code apperrors.ErrorCode) {
	c.push(Ack{Event: EventAck, Action: action, OK: false, Error: code})
}

func (c *Client) fail(action string, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeInternalError {
		logger.WithError(err).Error("ws operation failed", "action", action, "user_id", c.Identity.UserID)
	}
	c.nack(action, code)
}

func (c *Client) push(payload any) {
	select {
	case c.send <- payload:
	case <-c.done:
	}
}
