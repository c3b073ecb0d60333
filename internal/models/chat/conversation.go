package chat

import "time"

type ConversationKind string

const (
	KindSupport ConversationKind = "support"
	KindDm      ConversationKind = "dm"
)

type ConversationStatus string

const (
	StatusOpen   ConversationStatus = "open"
	StatusClosed ConversationStatus = "closed" // reserved, nothing closes conversations today
)

// Conversation is a chat thread. Support threads belong to one end user and
// lock to the first agent who opens them; dm threads link exactly two users.
//
// The LastMessage* columns are denormalized from the newest message so inbox
// lists render without joining the messages table. They are written only as a
// side effect of message creation.
type Conversation struct {
	ID   string           `gorm:"primaryKey;type:uuid"`
	Kind ConversationKind `gorm:"type:varchar(10);not null;index"`

	// The partial unique index is the cross-instance backstop for support
	// get-or-create: at most one open support thread per owner can ever
	// commit, a racing duplicate insert fails instead of persisting.
	OwnerUserID     string             `gorm:"not null;index;uniqueIndex:uniq_open_support_owner,where:kind = 'support' AND status = 'open'"`
	AssignedAgentID *string            `gorm:"index"`
	Status          ConversationStatus `gorm:"type:varchar(10);not null;default:'open'"`

	// PairKey is the sorted "low:high" participant pair, set for dm threads
	// only. Its unique index is the dm counterpart of the backstop above.
	PairKey *string `gorm:"uniqueIndex"`

	LastMessageID       *string
	LastMessageSenderID *string
	LastMessageAt       *time.Time `gorm:"index"`
	LastMessagePreview  *string    `gorm:"type:varchar(120)"`

	// Read mirrors for support threads; unassigned agents have no
	// participant row yet, so their read state lives here.
	OwnerLastReadAt *time.Time
	AgentLastReadAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Participants []Participant `gorm:"foreignKey:ConversationID"`
}

func (Conversation) TableName() string {
	return "chat_conversations"
}
