package loaders

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts batch reads and can fail comment reads.
type countingStore struct {
	storage.Storage
	commentCalls atomic.Int32
	commentErr   error
}

func (s *countingStore) GetCommentsByIDs(ctx context.Context, ids []string) ([]*models.Comment, error) {
	s.commentCalls.Add(1)
	if s.commentErr != nil {
		return nil, s.commentErr
	}
	return s.Storage.GetCommentsByIDs(ctx, ids)
}

func seed(t *testing.T) (*memory.MemoryStorage, *models.Question) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	tags, err := store.UpsertTags(ctx, []models.Tag{{Name: "go"}, {Name: "sql"}})
	require.NoError(t, err)
	q := &models.Question{ID: "q1", Title: "t", Text: "x", AskedBy: "alice", AskDateTime: now,
		Tags: []string{tags[1].ID, tags[0].ID}}
	require.NoError(t, store.CreateQuestion(ctx, q))
	require.NoError(t, store.CreateAnswer(ctx, "q1", &models.Answer{ID: "a1", Text: "first", AnsBy: "bob", AnsDateTime: now}))
	require.NoError(t, store.CreateAnswer(ctx, "q1", &models.Answer{ID: "a2", Text: "second", AnsBy: "carol", AnsDateTime: now}))
	require.NoError(t, store.AddComment(ctx, "q1", models.TargetQuestion, &models.Comment{ID: "c1", Text: "q-comment", CommentBy: "dave", CommentDateTime: now}))
	require.NoError(t, store.AddComment(ctx, "a2", models.TargetAnswer, &models.Comment{ID: "c2", Text: "a-comment", CommentBy: "erin", CommentDateTime: now}))
	require.NoError(t, store.AddComment(ctx, "a2", models.TargetAnswer, &models.Comment{ID: "c3", Text: "a-comment-2", CommentBy: "frank", CommentDateTime: now}))

	stored, err := store.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	return store, stored
}

func TestQuestion(t *testing.T) {
	store, q := seed(t)
	counting := &countingStore{Storage: store}

	detail, err := New(counting).Question(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "q1", detail.ID)
	require.Len(t, detail.Tags, 2)
	assert.Equal(t, "sql", detail.Tags[0].Name, "tag order follows the reference list")
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "q-comment", detail.Comments[0].Text)
	require.Len(t, detail.Answers, 2)
	assert.Equal(t, "a1", detail.Answers[0].ID)
	assert.Empty(t, detail.Answers[0].Comments)
	assert.Equal(t, []string{"c2", "c3"}, []string{detail.Answers[1].Comments[0].ID, detail.Answers[1].Comments[1].ID})
	assert.Equal(t, int32(1), counting.commentCalls.Load(), "all comments resolve in one batch")
}

func TestQuestion_SkipsDanglingReferences(t *testing.T) {
	store, q := seed(t)
	q.Comments = append(q.Comments, "gone")
	q.Answers = append([]string{"gone-answer"}, q.Answers...)

	detail, err := New(store).Question(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, detail.Comments, 1)
	assert.Len(t, detail.Answers, 2)
}

func TestQuestion_StoreError(t *testing.T) {
	store, q := seed(t)
	counting := &countingStore{Storage: store, commentErr: errors.New("connection reset")}

	_, err := New(counting).Question(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAnswer(t *testing.T) {
	store, _ := seed(t)
	l := New(store)

	a, err := l.Answer(context.Background(), "a2")
	require.NoError(t, err)
	assert.Equal(t, "second", a.Text)
	assert.Len(t, a.Comments, 2)

	_, err = l.Answer(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
