package chat

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hbl306/phongtro57-chat/internal/models"
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"github.com/hbl306/phongtro57-chat/internal/repositories"
	repoChat "github.com/hbl306/phongtro57-chat/internal/repositories/chat"
	"github.com/hbl306/phongtro57-chat/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var phoneSeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes
	// concurrent writers, which sqlite requires anyway
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&modelChat.Conversation{},
		&modelChat.Participant{},
		&modelChat.Message{},
	))
	return db
}

func newTestService(t *testing.T) (*ChatService, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	svc := NewChatService(
		repoChat.NewConversationRepository(db),
		repoChat.NewParticipantRepository(db),
		repoChat.NewMessageRepository(db),
		repositories.NewUserRepository(db),
	)
	return svc, db
}

func createUser(t *testing.T, db *gorm.DB, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		BaseModel:    models.BaseModel{ID: uuid.New().String()},
		Phone:        fmt.Sprintf("07%08d", atomic.AddInt64(&phoneSeq, 1)),
		Name:         name,
		PasswordHash: "x",
		Role:         role,
		Status:       models.UserStatusActive,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func identOf(u *models.User) *models.Identity {
	return &models.Identity{
		UserID:      u.ID,
		Role:        u.Role,
		DisplayName: u.Name,
		Phone:       u.Phone,
	}
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.CodeOf(err))
}

func TestGetOrCreateSupportConversation_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Minh", models.RoleUser)

	first, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)
	second, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, modelChat.KindSupport, first.Kind)
	assert.Equal(t, modelChat.StatusOpen, first.Status)

	var count int64
	require.NoError(t, db.Model(&modelChat.Conversation{}).
		Where("kind = ? AND owner_user_id = ? AND status = ?", modelChat.KindSupport, owner.ID, modelChat.StatusOpen).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// the owner gets a participant row on creation
	var pCount int64
	require.NoError(t, db.Model(&modelChat.Participant{}).
		Where("conversation_id = ? AND user_id = ?", first.ID, owner.ID).
		Count(&pCount).Error)
	assert.EqualValues(t, 1, pCount)
}

func TestGetOrCreateSupportConversation_Concurrent(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Lan", models.RoleUser)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := svc.GetOrCreateSupportConversation(owner.ID)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, db.Model(&modelChat.Conversation{}).
		Where("owner_user_id = ?", owner.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreateDmConversation_PairUniqueness(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	c := createUser(t, db, "Cuong", models.RoleUser)

	ab, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)
	ba, err := svc.GetOrCreateDmConversation(b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ab.ID, ba.ID)

	// a distinct peer pair gets its own conversation
	ac, err := svc.GetOrCreateDmConversation(a.ID, c.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ab.ID, ac.ID)

	// concurrent calls in either direction still collapse to one row
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var conv *modelChat.Conversation
			var err error
			if i%2 == 0 {
				conv, err = svc.GetOrCreateDmConversation(a.ID, b.ID)
			} else {
				conv, err = svc.GetOrCreateDmConversation(b.ID, a.ID)
			}
			if assert.NoError(t, err) {
				assert.Equal(t, ab.ID, conv.ID)
			}
		}(i)
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&modelChat.Conversation{}).
		Where("kind = ?", modelChat.KindDm).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)

	// both participants inserted exactly once
	var pCount int64
	require.NoError(t, db.Model(&modelChat.Participant{}).
		Where("conversation_id = ?", ab.ID).
		Count(&pCount).Error)
	assert.EqualValues(t, 2, pCount)
}

func newServiceOn(db *gorm.DB) *ChatService {
	return NewChatService(
		repoChat.NewConversationRepository(db),
		repoChat.NewParticipantRepository(db),
		repoChat.NewMessageRepository(db),
		repositories.NewUserRepository(db),
	)
}

func TestGetOrCreateSupportConversation_CrossInstance(t *testing.T) {
	// two service instances over one database, the way separate processes
	// would race: singleflight cannot help here, the storage backstop must
	db := openTestDB(t)
	svc1, svc2 := newServiceOn(db), newServiceOn(db)
	owner := createUser(t, db, "Lan", models.RoleUser)

	ids := make([]string, 2)
	var wg sync.WaitGroup
	for i, svc := range []*ChatService{svc1, svc2} {
		wg.Add(1)
		go func(i int, svc *ChatService) {
			defer wg.Done()
			conv, err := svc.GetOrCreateSupportConversation(owner.ID)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i, svc)
	}
	wg.Wait()

	assert.Equal(t, ids[0], ids[1])

	var count int64
	require.NoError(t, db.Model(&modelChat.Conversation{}).
		Where("owner_user_id = ?", owner.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreateDmConversation_CrossInstance(t *testing.T) {
	db := openTestDB(t)
	svc1, svc2 := newServiceOn(db), newServiceOn(db)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)

	ids := make([]string, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		conv, err := svc1.GetOrCreateDmConversation(a.ID, b.ID)
		if assert.NoError(t, err) {
			ids[0] = conv.ID
		}
	}()
	go func() {
		defer wg.Done()
		conv, err := svc2.GetOrCreateDmConversation(b.ID, a.ID)
		if assert.NoError(t, err) {
			ids[1] = conv.ID
		}
	}()
	wg.Wait()

	assert.Equal(t, ids[0], ids[1])

	// exactly one conversation, with both participant rows committed: the
	// conversation and its participants go in as one transaction, so no
	// half-created row can ever satisfy or dodge the pair lookup
	var convCount int64
	require.NoError(t, db.Model(&modelChat.Conversation{}).
		Where("kind = ?", modelChat.KindDm).
		Count(&convCount).Error)
	assert.EqualValues(t, 1, convCount)

	var pCount int64
	require.NoError(t, db.Model(&modelChat.Participant{}).
		Where("conversation_id = ?", ids[0]).
		Count(&pCount).Error)
	assert.EqualValues(t, 2, pCount)
}

func TestConversationStore_DuplicateOpenThreadsRejected(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Minh", models.RoleUser)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)

	_, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)

	// a second open support thread for the same owner cannot commit
	now := time.Now().UTC()
	dupSupport := &modelChat.Conversation{
		ID:          uuid.New().String(),
		Kind:        modelChat.KindSupport,
		OwnerUserID: owner.ID,
		Status:      modelChat.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	assert.Error(t, svc.Conversations.Create(dupSupport))

	_, err = svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)

	// same for a second dm thread carrying the same pair key
	pair := dmPairKey(a.ID, b.ID)
	dupDm := &modelChat.Conversation{
		ID:          uuid.New().String(),
		Kind:        modelChat.KindDm,
		OwnerUserID: a.ID,
		Status:      modelChat.StatusOpen,
		PairKey:     &pair,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	assert.Error(t, svc.Conversations.Create(dupDm))
}

func TestGetOrCreateDmConversation_Validation(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)

	_, err := svc.GetOrCreateDmConversation(a.ID, a.ID)
	assertCode(t, err, apperrors.CodeValidationFailed)

	_, err = svc.GetOrCreateDmConversation(a.ID, "")
	assertCode(t, err, apperrors.CodeValidationFailed)

	_, err = svc.GetOrCreateDmConversation(a.ID, uuid.New().String())
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestJoin_SupportRules(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Minh", models.RoleUser)
	stranger := createUser(t, db, "Khanh", models.RoleUser)
	agent1 := createUser(t, db, "Agent One", models.RoleAgent)
	agent2 := createUser(t, db, "Agent Two", models.RoleAgent)

	conv, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)

	// unknown conversation
	_, err = svc.Join(identOf(owner), uuid.New().String())
	assertCode(t, err, apperrors.CodeNotFound)

	// owner may join, a different ordinary user may not
	_, err = svc.Join(identOf(owner), conv.ID)
	require.NoError(t, err)
	_, err = svc.Join(identOf(stranger), conv.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	// first agent join claims the thread
	joined, err := svc.Join(identOf(agent1), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, joined.AssignedAgentID)
	assert.Equal(t, agent1.ID, *joined.AssignedAgentID)

	// rejoin by the same agent is a no-op success
	_, err = svc.Join(identOf(agent1), conv.ID)
	require.NoError(t, err)

	// any other agent is rejected once claimed
	_, err = svc.Join(identOf(agent2), conv.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	fresh, err := svc.Conversations.FindByID(conv.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.AssignedAgentID)
	assert.Equal(t, agent1.ID, *fresh.AssignedAgentID)
}

func TestJoin_FirstTouchAssignment_Concurrent(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Minh", models.RoleUser)
	agent1 := createUser(t, db, "Agent One", models.RoleAgent)
	agent2 := createUser(t, db, "Agent Two", models.RoleAgent)

	conv, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, agent := range []*models.User{agent1, agent2} {
		wg.Add(1)
		go func(i int, agent *models.User) {
			defer wg.Done()
			_, results[i] = svc.Join(identOf(agent), conv.ID)
		}(i, agent)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one agent wins the claim")

	fresh, err := svc.Conversations.FindByID(conv.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.AssignedAgentID)
	assert.Contains(t, []string{agent1.ID, agent2.ID}, *fresh.AssignedAgentID)
}

func TestJoin_DmRequiresMembership(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	outsider := createUser(t, db, "Khanh", models.RoleUser)

	conv, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.Join(identOf(a), conv.ID)
	require.NoError(t, err)
	_, err = svc.Join(identOf(b), conv.ID)
	require.NoError(t, err)

	_, err = svc.Join(identOf(outsider), conv.ID)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestSendMessage_Validation(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	conv, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(identOf(a), conv.ID, "text", "   \n\t ")
	assertCode(t, err, apperrors.CodeValidationFailed)

	_, _, err = svc.SendMessage(identOf(a), conv.ID, "image", "hello")
	assertCode(t, err, apperrors.CodeValidationFailed)

	var count int64
	require.NoError(t, db.Model(&modelChat.Message{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "no message row on a rejected send")
}

func TestSendMessage_ForbiddenDmSend(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	outsider := createUser(t, db, "Khanh", models.RoleUser)
	conv, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(identOf(outsider), conv.ID, "text", "let me in")
	assertCode(t, err, apperrors.CodeForbidden)

	var count int64
	require.NoError(t, db.Model(&modelChat.Message{}).
		Where("conversation_id = ?", conv.ID).
		Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestSendMessage_PreviewAndFanOut(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Minh", models.RoleUser)
	agent := createUser(t, db, "Agent", models.RoleAgent)

	conv, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)

	long := strings.Repeat("xin chào ", 20) // well over 80 runes
	msg, fanOut, err := svc.SendMessage(identOf(owner), conv.ID, "", long)
	require.NoError(t, err)
	assert.Equal(t, modelChat.SenderRoleUser, msg.SenderRole)
	assert.Equal(t, strings.TrimSpace(long), msg.Content)

	fresh, err := svc.Conversations.FindByID(conv.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.LastMessageAt)
	require.NotNil(t, fresh.LastMessagePreview)
	require.NotNil(t, fresh.LastMessageSenderID)
	assert.Equal(t, owner.ID, *fresh.LastMessageSenderID)
	assert.Equal(t, 80, len([]rune(*fresh.LastMessagePreview)))

	// support fan-out: owner inbox + shared agents room
	assert.True(t, fanOut.NotifyAgents)
	assert.Equal(t, []string{owner.ID}, fanOut.InboxUserIDs)
	assert.Equal(t, modelChat.KindSupport, fanOut.Kind)

	// an agent sending carries the agent sender role and dm-style fan-out
	// stays per-participant
	_, err = svc.Join(identOf(agent), conv.ID)
	require.NoError(t, err)
	agentMsg, _, err := svc.SendMessage(identOf(agent), conv.ID, "text", "chào bạn")
	require.NoError(t, err)
	assert.Equal(t, modelChat.SenderRoleAgent, agentMsg.SenderRole)

	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	dm, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)
	_, dmFan, err := svc.SendMessage(identOf(a), dm.ID, "text", "hello")
	require.NoError(t, err)
	assert.False(t, dmFan.NotifyAgents)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, dmFan.InboxUserIDs)
}

func TestFetchMessages_AscendingOrder(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	conv, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)

	contents := []string{"one", "two", "three", "four"}
	for _, content := range contents {
		_, _, err := svc.SendMessage(identOf(a), conv.ID, "text", content)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	msgs, err := svc.FetchMessages(identOf(b), conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, content := range contents {
		assert.Equal(t, content, msgs[i].Content)
	}

	// a window smaller than the history returns the newest slice, oldest first
	window, err := svc.FetchMessages(identOf(b), conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "three", window[0].Content)
	assert.Equal(t, "four", window[1].Content)

	// fetch never claims: an agent viewing an unassigned support thread
	// leaves it unassigned
	owner := createUser(t, db, "Minh", models.RoleUser)
	agent := createUser(t, db, "Agent", models.RoleAgent)
	support, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)
	_, err = svc.FetchMessages(identOf(agent), support.ID, 10)
	require.NoError(t, err)
	fresh, err := svc.Conversations.FindByID(support.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.AssignedAgentID)
}

func TestMarkRead_UnreadRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	a := createUser(t, db, "An", models.RoleUser)
	b := createUser(t, db, "Binh", models.RoleUser)
	conv, err := svc.GetOrCreateDmConversation(a.ID, b.ID)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(identOf(a), conv.ID, "text", "hello")
	require.NoError(t, err)

	listB, err := svc.ListDmConversations(b.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, listB, 1)
	assert.True(t, listB[0].Unread)
	require.NotNil(t, listB[0].Preview)
	assert.Equal(t, "hello", *listB[0].Preview)

	// sender's own view is never unread
	listA, err := svc.ListDmConversations(a.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, listA, 1)
	assert.False(t, listA[0].Unread)

	time.Sleep(2 * time.Millisecond)
	_, _, err = svc.MarkRead(identOf(b), conv.ID)
	require.NoError(t, err)

	listB, err = svc.ListDmConversations(b.ID, "", 0)
	require.NoError(t, err)
	assert.False(t, listB[0].Unread)

	// a new message from the peer flips it back
	time.Sleep(2 * time.Millisecond)
	_, _, err = svc.SendMessage(identOf(a), conv.ID, "text", "are you there?")
	require.NoError(t, err)

	listB, err = svc.ListDmConversations(b.ID, "", 0)
	require.NoError(t, err)
	assert.True(t, listB[0].Unread)
}

func TestListSupportConversations_EmptinessAndSearch(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "Nguyen Van Minh", models.RoleUser)
	other := createUser(t, db, "Tran Thi Lan", models.RoleUser)
	agent := createUser(t, db, "Agent", models.RoleAgent)

	convMinh, err := svc.GetOrCreateSupportConversation(owner.ID)
	require.NoError(t, err)

	// no messages yet: invisible to agents
	list, err := svc.ListSupportConversations(agent.ID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, _, err = svc.SendMessage(identOf(owner), convMinh.ID, "text", "tôi cần hỗ trợ")
	require.NoError(t, err)

	convLan, err := svc.GetOrCreateSupportConversation(other.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, _, err = svc.SendMessage(identOf(other), convLan.ID, "text", "xin chào")
	require.NoError(t, err)

	list, err = svc.ListSupportConversations(agent.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// most recent activity first
	assert.Equal(t, convLan.ID, list[0].ID)
	assert.Equal(t, convMinh.ID, list[1].ID)
	assert.True(t, list[0].Unread)
	assert.Equal(t, "Tran Thi Lan", list[0].Owner.Name)

	// case-insensitive substring on the owner's name
	list, err = svc.ListSupportConversations(agent.ID, "minh", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, convMinh.ID, list[0].ID)

	// a thread assigned to another agent disappears from this agent's inbox
	rival := createUser(t, db, "Rival Agent", models.RoleAgent)
	_, err = svc.Join(identOf(rival), convLan.ID)
	require.NoError(t, err)
	list, err = svc.ListSupportConversations(agent.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, convMinh.ID, list[0].ID)
}

func TestUnreadSummary(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, "Minh", models.RoleUser)
	peer := createUser(t, db, "Lan", models.RoleUser)
	agent := createUser(t, db, "Agent", models.RoleAgent)

	support, err := svc.GetOrCreateSupportConversation(user.ID)
	require.NoError(t, err)
	dm, err := svc.GetOrCreateDmConversation(user.ID, peer.ID)
	require.NoError(t, err)

	// empty conversations count as read for everyone
	summary, err := svc.UnreadSummary(identOf(agent))
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.Total)

	_, _, err = svc.SendMessage(identOf(user), support.ID, "text", "giúp tôi với")
	require.NoError(t, err)
	_, _, err = svc.SendMessage(identOf(peer), dm.ID, "text", "hi")
	require.NoError(t, err)

	// the agent sees the new support thread, not the dm
	summary, err = svc.UnreadSummary(identOf(agent))
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Support)
	assert.EqualValues(t, 0, summary.Dm)
	assert.EqualValues(t, 1, summary.Total)

	// the user sees the dm from the peer; their own support message does
	// not count against them
	summary, err = svc.UnreadSummary(identOf(user))
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.Support)
	assert.EqualValues(t, 1, summary.Dm)

	// agent replies in the support thread: now the user has support unread
	_, err = svc.Join(identOf(agent), support.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, _, err = svc.SendMessage(identOf(agent), support.ID, "text", "tôi đây")
	require.NoError(t, err)

	summary, err = svc.UnreadSummary(identOf(user))
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Support)
	assert.EqualValues(t, 2, summary.Total)

	// marking read clears the corresponding bucket
	time.Sleep(2 * time.Millisecond)
	_, _, err = svc.MarkRead(identOf(user), support.ID)
	require.NoError(t, err)
	_, _, err = svc.MarkRead(identOf(user), dm.ID)
	require.NoError(t, err)

	summary, err = svc.UnreadSummary(identOf(user))
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.Total)
}
