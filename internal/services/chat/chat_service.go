package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbl306/phongtro57-chat/internal/models"
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"github.com/hbl306/phongtro57-chat/internal/repositories"
	repoChat "github.com/hbl306/phongtro57-chat/internal/repositories/chat"
	"github.com/hbl306/phongtro57-chat/internal/services/dto"
	"github.com/hbl306/phongtro57-chat/pkg/apperrors"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	previewMaxRunes = 80
	maxPageSize     = 100
)

// ChatService owns every mutating and snapshot operation of the chat core.
// The websocket router calls into it for join/send/markRead and broadcasts
// according to the returned FanOut; the REST handlers call the snapshot
// methods directly.
type ChatService struct {
	Conversations *repoChat.ConversationRepository
	Participants  *repoChat.ParticipantRepository
	Messages      *repoChat.MessageRepository
	Users         *repositories.UserRepository

	// Page-size defaults from configuration; zero falls back to 50.
	MessagePageSize int
	InboxPageSize   int

	// Collapses concurrent get-or-create calls for the same key into one
	// execution, so one user (or one dm pair) can never end up with two
	// open conversations.
	creates singleflight.Group
}

func NewChatService(
	conversations *repoChat.ConversationRepository,
	participants *repoChat.ParticipantRepository,
	messages *repoChat.MessageRepository,
	users *repositories.UserRepository,
) *ChatService {
	return &ChatService{
		Conversations: conversations,
		Participants:  participants,
		Messages:      messages,
		Users:         users,
	}
}

// FanOut tells the router which rooms must learn about a mutation.
type FanOut struct {
	ConversationID string
	Kind           modelChat.ConversationKind
	InboxUserIDs   []string // per-user inbox rooms
	NotifyAgents   bool     // shared agents room (support threads only)
}

// --- get-or-create ---

// GetOrCreateSupportConversation returns the user's single open support
// conversation, creating it on first need.
func (s *ChatService) GetOrCreateSupportConversation(ownerID string) (*modelChat.Conversation, error) {
	v, err, _ := s.creates.Do("support:"+ownerID, func() (interface{}, error) {
		conv, err := s.Conversations.FindOpenSupportByOwner(ownerID)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if conv != nil {
			return conv, nil
		}

		now := time.Now().UTC()
		conv = &modelChat.Conversation{
			ID:          uuid.New().String(),
			Kind:        modelChat.KindSupport,
			OwnerUserID: ownerID,
			Status:      modelChat.StatusOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.Conversations.DB.Transaction(func(tx *gorm.DB) error {
			if err := s.Conversations.WithTx(tx).Create(conv); err != nil {
				return err
			}
			return s.Participants.WithTx(tx).Upsert(conv.ID, ownerID)
		})
		if err != nil {
			// Lost a cross-instance race: the open-support unique index
			// rejected the duplicate, the winner's row is the one that
			// counts.
			if existing, ferr := s.Conversations.FindOpenSupportByOwner(ownerID); ferr == nil && existing != nil {
				return existing, nil
			}
			return nil, apperrors.InternalError(err)
		}
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*modelChat.Conversation), nil
}

// GetOrCreateDmConversation returns the dm conversation between exactly
// {meID, peerID}, creating it with both participants on first need.
func (s *ChatService) GetOrCreateDmConversation(meID, peerID string) (*modelChat.Conversation, error) {
	if peerID == "" || peerID == meID {
		return nil, apperrors.ValidationError("peer must be an existing user other than yourself")
	}
	if _, err := s.Users.FindByID(peerID); err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("chat", "peer user not found")
		}
		return nil, apperrors.InternalError(err)
	}

	pair := dmPairKey(meID, peerID)
	v, err, _ := s.creates.Do("dm:"+pair, func() (interface{}, error) {
		conv, err := s.Conversations.FindDmByPair(meID, peerID)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if conv != nil {
			return conv, nil
		}

		now := time.Now().UTC()
		conv = &modelChat.Conversation{
			ID:          uuid.New().String(),
			Kind:        modelChat.KindDm,
			OwnerUserID: meID,
			Status:      modelChat.StatusOpen,
			PairKey:     &pair,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		participants := []modelChat.Participant{
			{ID: uuid.New().String(), ConversationID: conv.ID, UserID: meID, CreatedAt: now},
			{ID: uuid.New().String(), ConversationID: conv.ID, UserID: peerID, CreatedAt: now},
		}

		// One transaction: a conversation row without its participant rows
		// must never commit, FindDmByPair could not see it and a retry would
		// duplicate the pair.
		err = s.Conversations.DB.Transaction(func(tx *gorm.DB) error {
			if err := s.Conversations.WithTx(tx).Create(conv); err != nil {
				return err
			}
			return s.Participants.WithTx(tx).CreateMany(participants)
		})
		if err != nil {
			// pair_key unique index: a concurrent instance won, use its row
			if existing, ferr := s.Conversations.FindDmByPair(meID, peerID); ferr == nil && existing != nil {
				return existing, nil
			}
			return nil, apperrors.InternalError(err)
		}
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*modelChat.Conversation), nil
}

// dmPairKey is the canonical sorted pair, shared by the in-process
// singleflight key and the persisted pair_key column.
func dmPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// --- room operations (called by the router) ---

// Join validates membership/assignment and self-heals the caller's
// participant row. For support threads an agent's first join claims the
// conversation; once claimed, every other agent is rejected.
func (s *ChatService) Join(viewer *models.Identity, convID string) (*modelChat.Conversation, error) {
	conv, err := s.loadConversation(convID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(viewer, conv, true); err != nil {
		return nil, err
	}
	if err := s.Participants.Upsert(conv.ID, viewer.UserID); err != nil {
		return nil, apperrors.InternalError(err)
	}
	return conv, nil
}

// SendMessage appends a message, refreshes the denormalized preview and
// reports the fan-out targets. Authorization mirrors Join, evaluated fresh.
func (s *ChatService) SendMessage(viewer *models.Identity, convID, msgType, content string) (*modelChat.Message, *FanOut, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, apperrors.ValidationError("message content must not be empty")
	}
	if msgType == "" {
		msgType = string(modelChat.MessageTypeText)
	}
	if msgType != string(modelChat.MessageTypeText) {
		return nil, nil, apperrors.ValidationError("unsupported message type")
	}

	conv, err := s.loadConversation(convID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(viewer, conv, true); err != nil {
		return nil, nil, err
	}

	senderRole := modelChat.SenderRoleUser
	if viewer.Role.IsAgent() {
		senderRole = modelChat.SenderRoleAgent
	}

	msg := &modelChat.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       viewer.UserID,
		SenderRole:     senderRole,
		Type:           modelChat.MessageTypeText,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Messages.Create(msg); err != nil {
		return nil, nil, apperrors.InternalError(err)
	}
	if err := s.Conversations.SetLastMessage(conv.ID, msg, truncatePreview(content)); err != nil {
		return nil, nil, apperrors.InternalError(err)
	}

	fanOut, err := s.fanOutFor(conv)
	if err != nil {
		return nil, nil, err
	}
	return msg, fanOut, nil
}

// MarkRead stamps the caller's read time and reports the fan-out targets so
// badges clear across the caller's other sessions.
func (s *ChatService) MarkRead(viewer *models.Identity, convID string) (time.Time, *FanOut, error) {
	conv, err := s.loadConversation(convID)
	if err != nil {
		return time.Time{}, nil, err
	}
	if err := s.authorize(viewer, conv, true); err != nil {
		return time.Time{}, nil, err
	}

	now := time.Now().UTC()
	if err := s.Participants.StampRead(viewer.UserID, conv.ID, now); err != nil {
		return time.Time{}, nil, apperrors.InternalError(err)
	}
	if conv.Kind == modelChat.KindSupport {
		if viewer.Role.IsAgent() {
			err = s.Conversations.StampAgentRead(conv.ID, now)
		} else {
			err = s.Conversations.StampOwnerRead(conv.ID, now)
		}
		if err != nil {
			return time.Time{}, nil, apperrors.InternalError(err)
		}
	}

	fanOut, err := s.fanOutFor(conv)
	if err != nil {
		return time.Time{}, nil, err
	}
	return now, fanOut, nil
}

// --- snapshot operations ---

// FetchMessages returns up to limit newest messages in chronological order.
// Viewing never claims an unassigned support thread; only Join does.
func (s *ChatService) FetchMessages(viewer *models.Identity, convID string, limit int) ([]dto.MessageResponse, error) {
	conv, err := s.loadConversation(convID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(viewer, conv, false); err != nil {
		return nil, err
	}

	limit = normalizeLimit(limit, s.MessagePageSize)
	msgs, err := s.Messages.ListRecent(conv.ID, limit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	out := make([]dto.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, dto.MessageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			SenderRole:     string(m.SenderRole),
			Type:           string(m.Type),
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out, nil
}

// ListSupportConversations returns the agent inbox: open support threads
// that are unassigned or owned by this agent, newest activity first.
func (s *ChatService) ListSupportConversations(agentID, q string, limit int) ([]dto.SupportConversationResponse, error) {
	limit = normalizeLimit(limit, s.InboxPageSize)
	rows, err := s.Conversations.ListSupportForAgent(agentID, q, limit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	out := make([]dto.SupportConversationResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.SupportConversationResponse{
			ID: row.ID,
			Owner: dto.PeerInfo{
				ID:    row.OwnerUserID,
				Name:  row.OwnerName,
				Phone: row.OwnerPhone,
			},
			AssignedAgentID: row.AssignedAgentID,
			LastMessageID:   row.LastMessageID,
			LastSenderID:    row.LastMessageSenderID,
			LastMessageAt:   row.LastMessageAt,
			Preview:         row.LastMessagePreview,
			Unread:          deriveUnread(agentID, row.LastMessageSenderID, row.LastMessageAt, row.AgentLastReadAt),
		})
	}
	return out, nil
}

// ListDmConversations returns the caller's dm inbox resolved to the other
// participant, with a derived unread flag per conversation.
func (s *ChatService) ListDmConversations(userID, q string, limit int) ([]dto.DmConversationResponse, error) {
	limit = normalizeLimit(limit, s.InboxPageSize)
	rows, err := s.Conversations.ListDmForUser(userID, q, limit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	out := make([]dto.DmConversationResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.DmConversationResponse{
			ID: row.ID,
			Peer: dto.PeerInfo{
				ID:    row.PeerID,
				Name:  row.PeerName,
				Phone: row.PeerPhone,
			},
			LastMessageID: row.LastMessageID,
			LastSenderID:  row.LastMessageSenderID,
			LastMessageAt: row.LastMessageAt,
			Preview:       row.LastMessagePreview,
			ReadAt:        row.MyLastReadAt,
			Unread:        deriveUnread(userID, row.LastMessageSenderID, row.LastMessageAt, row.MyLastReadAt),
		})
	}
	return out, nil
}

// UnreadSummary counts unread conversations per kind for the viewer.
func (s *ChatService) UnreadSummary(viewer *models.Identity) (*dto.UnreadSummaryResponse, error) {
	var support int64
	var err error
	if viewer.Role.IsAgent() {
		support, err = s.Conversations.CountUnreadSupportForAgent(viewer.UserID)
	} else {
		support, err = s.Conversations.CountUnreadSupportForOwner(viewer.UserID)
	}
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	dm, err := s.Conversations.CountUnreadDm(viewer.UserID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	return &dto.UnreadSummaryResponse{
		Total:   support + dm,
		Support: support,
		Dm:      dm,
	}, nil
}

// --- internals ---

func (s *ChatService) loadConversation(convID string) (*modelChat.Conversation, error) {
	if convID == "" {
		return nil, apperrors.ValidationError("conversation id is required")
	}
	conv, err := s.Conversations.FindByID(convID)
	if err != nil {
		if apperrors.Is(err, repoChat.ErrConversationNotFound) {
			return nil, apperrors.NewNotFoundError("chat", "conversation not found")
		}
		return nil, apperrors.InternalError(err)
	}
	return conv, nil
}

// authorize enforces the per-kind participation rules. With claim set, an
// agent touching an unassigned support thread performs the first-touch
// assignment; exactly one concurrent claimer can win the guarded update.
func (s *ChatService) authorize(viewer *models.Identity, conv *modelChat.Conversation, claim bool) error {
	switch conv.Kind {
	case modelChat.KindSupport:
		if !viewer.Role.IsAgent() {
			if conv.OwnerUserID != viewer.UserID {
				return apperrors.NewForbiddenError("not your support conversation")
			}
			return nil
		}
		if conv.AssignedAgentID != nil {
			if *conv.AssignedAgentID != viewer.UserID {
				return apperrors.NewForbiddenError("conversation is assigned to another agent")
			}
			return nil
		}
		if !claim {
			return nil
		}
		won, err := s.Conversations.ClaimAgent(conv.ID, viewer.UserID)
		if err != nil {
			return apperrors.InternalError(err)
		}
		if !won {
			// Re-read: a retry of our own claim is fine, anyone else's is not.
			fresh, err := s.Conversations.FindByID(conv.ID)
			if err != nil {
				return apperrors.InternalError(err)
			}
			if fresh.AssignedAgentID == nil || *fresh.AssignedAgentID != viewer.UserID {
				return apperrors.NewForbiddenError("conversation is assigned to another agent")
			}
		}
		agentID := viewer.UserID
		conv.AssignedAgentID = &agentID
		return nil

	case modelChat.KindDm:
		isMember, err := s.Participants.IsParticipant(viewer.UserID, conv.ID)
		if err != nil {
			return apperrors.InternalError(err)
		}
		if !isMember {
			return apperrors.NewForbiddenError("not a participant of this conversation")
		}
		return nil

	default:
		return apperrors.NewForbiddenError("unknown conversation kind")
	}
}

func (s *ChatService) fanOutFor(conv *modelChat.Conversation) (*FanOut, error) {
	fanOut := &FanOut{
		ConversationID: conv.ID,
		Kind:           conv.Kind,
	}
	if conv.Kind == modelChat.KindSupport {
		// Agents watch the shared room so activity on threads they have
		// not joined still raises the inbox badge.
		fanOut.InboxUserIDs = []string{conv.OwnerUserID}
		fanOut.NotifyAgents = true
		return fanOut, nil
	}

	ids, err := s.Participants.ListUserIDs(conv.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	sort.Strings(ids)
	fanOut.InboxUserIDs = ids
	return fanOut, nil
}

func deriveUnread(viewerID string, lastSenderID *string, lastMessageAt, readAt *time.Time) bool {
	if lastMessageAt == nil {
		return false
	}
	if lastSenderID != nil && *lastSenderID == viewerID {
		return false
	}
	if readAt == nil {
		return true
	}
	return lastMessageAt.After(*readAt)
}

// normalizeLimit applies the configured default when the requested page size
// is absent or out of range.
func normalizeLimit(limit, fallback int) int {
	if limit > 0 && limit <= maxPageSize {
		return limit
	}
	if fallback > 0 && fallback <= maxPageSize {
		return fallback
	}
	return 50
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxRunes {
		return content
	}
	return string(runes[:previewMaxRunes])
}
