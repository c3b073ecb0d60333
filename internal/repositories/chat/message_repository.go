package chat

import (
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"gorm.io/gorm"
)

type MessageRepository struct {
	DB *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

// Create appends a message. The insert is the single serialization point for
// message ordering within a conversation.
func (r *MessageRepository) Create(msg *modelChat.Message) error {
	return r.DB.Create(msg).Error
}

// ListRecent returns up to limit newest messages in ascending order, so the
// oldest message of the returned window comes first.
func (r *MessageRepository) ListRecent(convID string, limit int) ([]modelChat.Message, error) {
	var msgs []modelChat.Message
	err := r.DB.
		Where("conversation_id = ?", convID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
