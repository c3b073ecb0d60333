package chat

import "time"

// Participant links a user to a conversation. For dm threads this is the
// authorization source of truth; for support threads rows are kept too so
// read tracking works the same way for both kinds.
type Participant struct {
	ID             string     `gorm:"primaryKey;type:uuid"`
	ConversationID string     `gorm:"not null;uniqueIndex:idx_participant_conv_user"`
	UserID         string     `gorm:"not null;uniqueIndex:idx_participant_conv_user;index"`
	LastReadAt     *time.Time
	CreatedAt      time.Time
}

func (Participant) TableName() string {
	return "chat_participants"
}
