package chat

import (
	"errors"
	"time"

	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"gorm.io/gorm"
)

var ErrConversationNotFound = errors.New("conversation not found")

type ConversationRepository struct {
	DB *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

// WithTx returns the repository bound to a transaction.
func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{DB: tx}
}

// FindByID returns the conversation or ErrConversationNotFound.
func (r *ConversationRepository) FindByID(id string) (*modelChat.Conversation, error) {
	var conv modelChat.Conversation
	err := r.DB.First(&conv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// FindOpenSupportByOwner returns the owner's open support conversation, or
// nil when none exists.
func (r *ConversationRepository) FindOpenSupportByOwner(ownerID string) (*modelChat.Conversation, error) {
	var conv modelChat.Conversation
	err := r.DB.
		Where("kind = ? AND owner_user_id = ? AND status = ?", modelChat.KindSupport, ownerID, modelChat.StatusOpen).
		Order("created_at ASC").
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindDmByPair returns the dm conversation whose participants are exactly
// {a, b}, or nil when none exists. Both joins must hit distinct participant
// rows, so a shared group thread can never satisfy this lookup.
func (r *ConversationRepository) FindDmByPair(a, b string) (*modelChat.Conversation, error) {
	var conv modelChat.Conversation
	err := r.DB.
		Table("chat_conversations AS c").
		Select("c.*").
		Joins("JOIN chat_participants p1 ON p1.conversation_id = c.id AND p1.user_id = ?", a).
		Joins("JOIN chat_participants p2 ON p2.conversation_id = c.id AND p2.user_id = ?", b).
		Where("c.kind = ?", modelChat.KindDm).
		Order("c.created_at ASC").
		Limit(1).
		Scan(&conv).Error
	if err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, nil
	}
	return &conv, nil
}

func (r *ConversationRepository) Create(conv *modelChat.Conversation) error {
	return r.DB.Create(conv).Error
}

// ClaimAgent performs the first-touch assignment as a single guarded update.
// It reports whether this call won the claim; a false result means another
// agent already holds the conversation (or claimed it concurrently).
func (r *ConversationRepository) ClaimAgent(convID, agentID string) (bool, error) {
	res := r.DB.Model(&modelChat.Conversation{}).
		Where("id = ? AND kind = ? AND assigned_agent_id IS NULL", convID, modelChat.KindSupport).
		Update("assigned_agent_id", agentID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetLastMessage refreshes the denormalized preview columns. Only the message
// path calls this, which keeps the denormalized fields free of write-write
// conflicts.
func (r *ConversationRepository) SetLastMessage(convID string, msg *modelChat.Message, preview string) error {
	return r.DB.Model(&modelChat.Conversation{}).
		Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message_id":        msg.ID,
			"last_message_sender_id": msg.SenderID,
			"last_message_at":        msg.CreatedAt,
			"last_message_preview":   preview,
		}).Error
}

// StampOwnerRead updates the support-thread read mirror for the owner.
func (r *ConversationRepository) StampOwnerRead(convID string, t time.Time) error {
	return r.DB.Model(&modelChat.Conversation{}).
		Where("id = ?", convID).
		Update("owner_last_read_at", t).Error
}

// StampAgentRead updates the support-thread read mirror for the agent.
func (r *ConversationRepository) StampAgentRead(convID string, t time.Time) error {
	return r.DB.Model(&modelChat.Conversation{}).
		Where("id = ?", convID).
		Update("agent_last_read_at", t).Error
}

// SupportInboxRow is one agent-inbox entry joined with the owner's identity.
type SupportInboxRow struct {
	ID                  string
	OwnerUserID         string
	AssignedAgentID     *string
	LastMessageID       *string
	LastMessageSenderID *string
	LastMessageAt       *time.Time
	LastMessagePreview  *string
	AgentLastReadAt     *time.Time
	OwnerName           string
	OwnerPhone          string
}

// ListSupportForAgent returns open support conversations that are unassigned
// or assigned to this agent, newest activity first. Threads with no messages
// yet are excluded so empty conversations never clutter the agent inbox.
func (r *ConversationRepository) ListSupportForAgent(agentID, q string, limit int) ([]SupportInboxRow, error) {
	query := r.DB.
		Table("chat_conversations AS c").
		Select(`c.id, c.owner_user_id, c.assigned_agent_id,
			c.last_message_id, c.last_message_sender_id, c.last_message_at, c.last_message_preview,
			c.agent_last_read_at,
			u.name AS owner_name, u.phone AS owner_phone`).
		Joins("JOIN users u ON u.id = c.owner_user_id").
		Where("c.kind = ? AND c.status = ?", modelChat.KindSupport, modelChat.StatusOpen).
		Where("c.assigned_agent_id IS NULL OR c.assigned_agent_id = ?", agentID).
		Where("c.last_message_at IS NOT NULL")

	if q != "" {
		query = query.Where("LOWER(u.name) LIKE LOWER(?)", "%"+q+"%")
	}

	var rows []SupportInboxRow
	err := query.
		Order("c.last_message_at DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// DmInboxRow is one dm-inbox entry resolved to the other participant.
type DmInboxRow struct {
	ID                  string
	LastMessageID       *string
	LastMessageSenderID *string
	LastMessageAt       *time.Time
	LastMessagePreview  *string
	MyLastReadAt        *time.Time
	PeerID              string
	PeerName            string
	PeerPhone           string
}

// ListDmForUser returns the caller's dm conversations with the peer identity
// and the caller's own read stamp, newest activity first. Conversations
// without messages are included; the inbox reconciliation layer filters them.
func (r *ConversationRepository) ListDmForUser(userID, q string, limit int) ([]DmInboxRow, error) {
	query := r.DB.
		Table("chat_conversations AS c").
		Select(`c.id,
			c.last_message_id, c.last_message_sender_id, c.last_message_at, c.last_message_preview,
			me.last_read_at AS my_last_read_at,
			other.user_id AS peer_id, u.name AS peer_name, u.phone AS peer_phone`).
		Joins("JOIN chat_participants me ON me.conversation_id = c.id AND me.user_id = ?", userID).
		Joins("JOIN chat_participants other ON other.conversation_id = c.id AND other.user_id <> ?", userID).
		Joins("JOIN users u ON u.id = other.user_id").
		Where("c.kind = ?", modelChat.KindDm)

	if q != "" {
		query = query.Where("LOWER(u.name) LIKE LOWER(?)", "%"+q+"%")
	}

	var rows []DmInboxRow
	err := query.
		Order("(c.last_message_at IS NULL), c.last_message_at DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// CountUnreadSupportForOwner counts the owner's open support conversations
// whose newest message is from someone else and newer than the owner's read
// stamp.
func (r *ConversationRepository) CountUnreadSupportForOwner(userID string) (int64, error) {
	var count int64
	err := r.DB.
		Table("chat_conversations AS c").
		Where("c.kind = ? AND c.status = ? AND c.owner_user_id = ?", modelChat.KindSupport, modelChat.StatusOpen, userID).
		Where("c.last_message_at IS NOT NULL AND c.last_message_sender_id <> ?", userID).
		Where("c.owner_last_read_at IS NULL OR c.last_message_at > c.owner_last_read_at").
		Count(&count).Error
	return count, err
}

// CountUnreadSupportForAgent counts unread support conversations visible to
// the agent: unassigned or their own. The agent read mirror is used because
// unassigned threads have no participant row for any agent yet.
func (r *ConversationRepository) CountUnreadSupportForAgent(agentID string) (int64, error) {
	var count int64
	err := r.DB.
		Table("chat_conversations AS c").
		Where("c.kind = ? AND c.status = ?", modelChat.KindSupport, modelChat.StatusOpen).
		Where("c.assigned_agent_id IS NULL OR c.assigned_agent_id = ?", agentID).
		Where("c.last_message_at IS NOT NULL AND c.last_message_sender_id <> ?", agentID).
		Where("c.agent_last_read_at IS NULL OR c.last_message_at > c.agent_last_read_at").
		Count(&count).Error
	return count, err
}

// CountUnreadDm counts the user's dm conversations with an unread newest
// message, by the same derivation rule as the dm inbox list.
func (r *ConversationRepository) CountUnreadDm(userID string) (int64, error) {
	var count int64
	err := r.DB.
		Table("chat_conversations AS c").
		Joins("JOIN chat_participants me ON me.conversation_id = c.id AND me.user_id = ?", userID).
		Where("c.kind = ?", modelChat.KindDm).
		Where("c.last_message_at IS NOT NULL AND c.last_message_sender_id <> ?", userID).
		Where("me.last_read_at IS NULL OR c.last_message_at > me.last_read_at").
		Count(&count).Error
	return count, err
}
