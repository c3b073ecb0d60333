package database

import (
	"github.com/hbl306/phongtro57-chat/internal/models"
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the chat-core schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&modelChat.Conversation{},
		&modelChat.Participant{},
		&modelChat.Message{},
	)
}
