package chat

import (
	"time"

	"github.com/google/uuid"
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantRepository struct {
	DB *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: db}
}

// WithTx returns the repository bound to a transaction.
func (r *ParticipantRepository) WithTx(tx *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: tx}
}

func (r *ParticipantRepository) CreateMany(participants []modelChat.Participant) error {
	return r.DB.Create(&participants).Error
}

// Upsert inserts a participant row if one is missing, keeping any existing
// row (and its read stamp) untouched. Used by room-join to self-heal.
func (r *ParticipantRepository) Upsert(convID, userID string) error {
	p := modelChat.Participant{
		ID:             uuid.New().String(),
		ConversationID: convID,
		UserID:         userID,
		CreatedAt:      time.Now().UTC(),
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&p).Error
}

// IsParticipant reports whether the user has a row in the conversation.
func (r *ParticipantRepository) IsParticipant(userID, convID string) (bool, error) {
	var count int64
	err := r.DB.Model(&modelChat.Participant{}).
		Where("user_id = ? AND conversation_id = ?", userID, convID).
		Count(&count).Error
	return count > 0, err
}

// StampRead sets the user's last-read time, inserting the row if needed.
func (r *ParticipantRepository) StampRead(userID, convID string, t time.Time) error {
	p := modelChat.Participant{
		ID:             uuid.New().String(),
		ConversationID: convID,
		UserID:         userID,
		LastReadAt:     &t,
		CreatedAt:      time.Now().UTC(),
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_read_at": t}),
	}).Create(&p).Error
}

// ListUserIDs returns the user ids of every participant in the conversation.
func (r *ParticipantRepository) ListUserIDs(convID string) ([]string, error) {
	var ids []string
	err := r.DB.Model(&modelChat.Participant{}).
		Where("conversation_id = ?", convID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// Find returns the participant row, or nil when absent.
func (r *ParticipantRepository) Find(userID, convID string) (*modelChat.Participant, error) {
	var p modelChat.Participant
	err := r.DB.
		Where("user_id = ? AND conversation_id = ?", userID, convID).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}
