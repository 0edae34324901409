package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/db"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func seedSession(t *testing.T, repo *SessionRepository, id, owner string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &domain.Session{
		ID: id, UserID: owner, Title: "title " + id, CreatedAt: at, UpdatedAt: at,
	}))
}

func seedMessage(t *testing.T, repo *MessageRepository, id, session string, role domain.Role, content string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), &domain.Message{
		ID: id, SessionID: session, Role: role, Type: domain.TypeText, Content: content, CreatedAt: at,
	}))
}

func TestSessionRepository(t *testing.T) {
	gdb := newTestDB(t)
	sessions := NewSessionRepository(gdb)
	messages := NewMessageRepository(gdb)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", t0)
	seedSession(t, sessions, "s2", "u1", t0.Add(time.Minute))
	seedSession(t, sessions, "s3", "u2", t0)

	got, err := sessions.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "title s1", got.Title)

	_, err = sessions.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// a new message makes s1 the most recent session
	seedMessage(t, messages, "m1", "s1", domain.RoleUser, "hi", t0.Add(time.Hour))
	list, err := sessions.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)

	require.NoError(t, sessions.DeleteByID(ctx, "s1"))
	_, err = sessions.FindByID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = messages.FindByID(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, sessions.DeleteByID(ctx, "s1"), domain.ErrNotFound)
}

func TestMessageRepositoryHistory(t *testing.T) {
	gdb := newTestDB(t)
	sessions := NewSessionRepository(gdb)
	messages := NewMessageRepository(gdb)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", t0)
	seedMessage(t, messages, "m2", "s1", domain.RoleAssistant, "second", t0.Add(2*time.Second))
	seedMessage(t, messages, "m1", "s1", domain.RoleUser, "first", t0.Add(time.Second))
	// same timestamp as m2, inserted later
	seedMessage(t, messages, "m3", "s1", domain.RoleUser, "third", t0.Add(2*time.Second))

	all, err := messages.FindBySessionID(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	cutoff := t0.Add(2 * time.Second)
	before, err := messages.FindBySessionID(ctx, "s1", &cutoff)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "first", before[0].Content)

	err = messages.Save(ctx, &domain.Message{ID: "orphan", SessionID: "nope", Role: domain.RoleUser, Content: "x", CreatedAt: t0})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageRepositoryUpdates(t *testing.T) {
	gdb := newTestDB(t)
	sessions := NewSessionRepository(gdb)
	messages := NewMessageRepository(gdb)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "owner", t0)
	seedMessage(t, messages, "m1", "s1", domain.RoleAssistant, "old", t0)

	owner, err := messages.FindWithOwner(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "owner", owner.OwnerID)
	assert.Equal(t, "s1", owner.SessionID)
	assert.Equal(t, domain.RoleAssistant, owner.Role)
	_, err = messages.FindWithOwner(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	later := t0.Add(time.Hour)
	require.NoError(t, messages.UpdateContent(ctx, "m1", "new", "because", later))
	msg, err := messages.FindByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "new", msg.Content)
	assert.Equal(t, "because", msg.ReasoningContent)
	assert.True(t, msg.CreatedAt.Equal(later))
	assert.ErrorIs(t, messages.UpdateContent(ctx, "missing", "a", "", later), domain.ErrNotFound)

	require.NoError(t, messages.SetLiked(ctx, "m1", true))
	msg, err = messages.FindByID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, msg.Liked)
}
