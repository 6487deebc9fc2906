package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/erms-api/internal/models"
)

func TestMessageRepositoryConversationsAndThread(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	teacher := seedUser(t, db, "Teacher", models.RoleTeacher)
	ana := seedUser(t, db, "Ana", models.RoleStudent)
	ben := seedUser(t, db, "Ben", models.RoleStudent)

	base := time.Now().Add(-time.Hour)
	messages := []models.Message{
		{SenderID: ana.ID, RecipientID: teacher.ID, Content: "hello", CreatedAt: base},
		{SenderID: teacher.ID, RecipientID: ana.ID, Content: "hi Ana", CreatedAt: base.Add(time.Minute)},
		{SenderID: ana.ID, RecipientID: teacher.ID, Content: "question", CreatedAt: base.Add(2 * time.Minute)},
		{SenderID: ben.ID, RecipientID: teacher.ID, Content: "late work", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range messages {
		require.NoError(t, repo.Save(ctx, &messages[i]))
	}

	conversations, err := repo.Conversations(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	require.Equal(t, ben.ID, conversations[0].CounterpartID)
	require.Equal(t, int64(1), conversations[0].Unread)
	require.Equal(t, ana.ID, conversations[1].CounterpartID)
	require.Equal(t, int64(2), conversations[1].Unread)
	require.Equal(t, messages[2].ID, conversations[1].LastMessageID)

	thread, err := repo.Thread(ctx, teacher.ID, ana.ID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	require.Equal(t, "hi Ana", thread[0].Content)
	require.Equal(t, "question", thread[1].Content)

	updated, err := repo.MarkThreadRead(ctx, teacher.ID, ana.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)

	unread, err := repo.CountUnread(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)

	require.NoError(t, repo.MarkRead(ctx, messages[3].ID, time.Now()))
	unread, err = repo.CountUnread(ctx, teacher.ID)
	require.NoError(t, err)
	require.Zero(t, unread)
}
