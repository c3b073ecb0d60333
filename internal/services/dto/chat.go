package dto

import "time"

// Request/Response structures for the chat snapshot API.

type CreateDmConversationRequest struct {
	PeerID string `json:"peer_id" validate:"required,uuid4"`
}

type PeerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type ConversationResponse struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	OwnerUserID     string     `json:"owner_user_id"`
	AssignedAgentID *string    `json:"assigned_agent_id,omitempty"`
	Status          string     `json:"status"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	Preview         *string    `json:"preview,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SupportConversationResponse struct {
	ID              string     `json:"id"`
	Owner           PeerInfo   `json:"owner"`
	AssignedAgentID *string    `json:"assigned_agent_id,omitempty"`
	LastMessageID   *string    `json:"last_message_id,omitempty"`
	LastSenderID    *string    `json:"last_sender_id,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	Preview         *string    `json:"preview,omitempty"`
	Unread          bool       `json:"unread"`
}

type DmConversationResponse struct {
	ID            string     `json:"id"`
	Peer          PeerInfo   `json:"peer"`
	LastMessageID *string    `json:"last_message_id,omitempty"`
	LastSenderID  *string    `json:"last_sender_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Preview       *string    `json:"preview,omitempty"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	Unread        bool       `json:"unread"`
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderRole     string    `json:"sender_role"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type UnreadSummaryResponse struct {
	Total   int64 `json:"total"`
	Support int64 `json:"support"`
	Dm      int64 `json:"dm"`
}
