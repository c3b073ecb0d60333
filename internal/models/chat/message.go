package chat

import "time"

type MessageType string

const (
	MessageTypeText MessageType = "text"
)

type SenderRole string

const (
	SenderRoleUser  SenderRole = "user"
	SenderRoleAgent SenderRole = "agent"
)

// Message is append-only: rows are never updated or deleted by the chat core.
type Message struct {
	ID             string      `gorm:"primaryKey;type:uuid"`
	ConversationID string      `gorm:"index;not null"`
	SenderID       string      `gorm:"index;not null"`
	SenderRole     SenderRole  `gorm:"type:varchar(10);not null"`
	Type           MessageType `gorm:"type:varchar(10);not null;default:'text'"`
	Content        string      `gorm:"type:text;not null"`
	CreatedAt      time.Time   `gorm:"index"`
}

func (Message) TableName() string {
	return "chat_messages"
}
