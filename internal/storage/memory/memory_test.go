package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuestion(title string, asked time.Time) *models.Question {
	return &models.Question{
		ID:          uuid.New().String(),
		Title:       title,
		Text:        "body of " + title,
		AskedBy:     "alice",
		AskDateTime: asked,
	}
}

func TestMemoryStorage(t *testing.T) {
	t.Run("CreateQuestion and GetQuestion", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		q := newQuestion("first", time.Now())
		require.NoError(t, store.CreateQuestion(ctx, q))

		got, err := store.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.Title, got.Title)
		assert.Equal(t, 0, got.Views)
		assert.Empty(t, got.Comments)
	})

	t.Run("GetQuestion Not Found", func(t *testing.T) {
		store := New()

		_, err := store.GetQuestion(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("AddComment appends to question and answer", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		q := newQuestion("commented", time.Now())
		require.NoError(t, store.CreateQuestion(ctx, q))
		ans := &models.Answer{ID: uuid.New().String(), Text: "answer", AnsBy: "bob", AnsDateTime: time.Now()}
		require.NoError(t, store.CreateAnswer(ctx, q.ID, ans))

		c1 := &models.Comment{ID: uuid.New().String(), Text: "one", CommentBy: "bob", CommentDateTime: time.Now()}
		c2 := &models.Comment{ID: uuid.New().String(), Text: "two", CommentBy: "carol", CommentDateTime: time.Now()}
		c3 := &models.Comment{ID: uuid.New().String(), Text: "three", CommentBy: "dave", CommentDateTime: time.Now()}
		require.NoError(t, store.AddComment(ctx, q.ID, models.TargetQuestion, c1))
		require.NoError(t, store.AddComment(ctx, q.ID, models.TargetQuestion, c2))
		require.NoError(t, store.AddComment(ctx, ans.ID, models.TargetAnswer, c3))

		got, err := store.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{c1.ID, c2.ID}, got.Comments)
		assert.Equal(t, []string{ans.ID}, got.Answers)

		answers, err := store.GetAnswersByIDs(ctx, []string{ans.ID})
		require.NoError(t, err)
		require.Len(t, answers, 1)
		assert.Equal(t, []string{c3.ID}, answers[0].Comments)
		assert.Equal(t, q.ID, answers[0].QuestionID)

		comments, err := store.GetCommentsByIDs(ctx, []string{c2.ID, "missing", c1.ID})
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, "two", comments[0].Text)
		assert.Equal(t, "one", comments[1].Text)
	})

	t.Run("AddComment unknown target", func(t *testing.T) {
		store := New()
		ctx := context.Background()
		c := &models.Comment{ID: uuid.New().String(), Text: "x", CommentBy: "bob", CommentDateTime: time.Now()}

		assert.ErrorIs(t, store.AddComment(ctx, "missing", models.TargetQuestion, c), storage.ErrNotFound)
		assert.ErrorIs(t, store.AddComment(ctx, "missing", models.TargetAnswer, c), storage.ErrNotFound)

		comments, err := store.GetCommentsByIDs(ctx, []string{c.ID})
		require.NoError(t, err)
		assert.Empty(t, comments, "a failed append must not leave an orphan comment")
	})

	t.Run("ToggleVote", func(t *testing.T) {
		store := New()
		ctx := context.Background()
		q := newQuestion("voted", time.Now())
		require.NoError(t, store.CreateQuestion(ctx, q))

		sets, err := store.ToggleVote(ctx, q.ID, "alice", models.Upvote)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, sets.UpVotes)
		assert.Empty(t, sets.DownVotes)

		sets, err = store.ToggleVote(ctx, q.ID, "alice", models.Upvote)
		require.NoError(t, err)
		assert.Empty(t, sets.UpVotes, "second upvote removes the vote")

		_, err = store.ToggleVote(ctx, q.ID, "alice", models.Upvote)
		require.NoError(t, err)
		sets, err = store.ToggleVote(ctx, q.ID, "alice", models.Downvote)
		require.NoError(t, err)
		assert.Empty(t, sets.UpVotes)
		assert.Equal(t, []string{"alice"}, sets.DownVotes)

		_, err = store.ToggleVote(ctx, "missing", "alice", models.Upvote)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("IncrementViews concurrently", func(t *testing.T) {
		store := New()
		ctx := context.Background()
		q := newQuestion("viewed", time.Now())
		require.NoError(t, store.CreateQuestion(ctx, q))

		const n = 50
		var wg conc.WaitGroup
		for range n {
			wg.Go(func() {
				_, err := store.IncrementViews(ctx, q.ID)
				assert.NoError(t, err)
			})
		}
		wg.Wait()

		got, err := store.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.Views)
	})

	t.Run("ListQuestions orders and filters", func(t *testing.T) {
		store := New()
		ctx := context.Background()
		now := time.Now()

		tags, err := store.UpsertTags(ctx, []models.Tag{{Name: "go", Description: "golang"}})
		require.NoError(t, err)

		old := newQuestion("old channel question", now.Add(-2*time.Hour))
		old.Tags = []string{tags[0].ID}
		mid := newQuestion("mid", now.Add(-time.Hour))
		fresh := newQuestion("fresh", now)
		for _, q := range []*models.Question{old, mid, fresh} {
			require.NoError(t, store.CreateQuestion(ctx, q))
		}
		require.NoError(t, store.CreateAnswer(ctx, old.ID, &models.Answer{ID: uuid.New().String(), Text: "a", AnsBy: "bob", AnsDateTime: now.Add(time.Minute)}))
		_, err = store.IncrementViews(ctx, mid.ID)
		require.NoError(t, err)

		newest, err := store.ListQuestions(ctx, models.OrderNewest, "")
		require.NoError(t, err)
		assert.Equal(t, []string{fresh.ID, mid.ID, old.ID}, ids(newest))

		active, err := store.ListQuestions(ctx, models.OrderActive, "")
		require.NoError(t, err)
		assert.Equal(t, old.ID, active[0].ID)

		unanswered, err := store.ListQuestions(ctx, models.OrderUnanswered, "")
		require.NoError(t, err)
		assert.Equal(t, []string{fresh.ID, mid.ID}, ids(unanswered))

		viewed, err := store.ListQuestions(ctx, models.OrderMostViewed, "")
		require.NoError(t, err)
		assert.Equal(t, mid.ID, viewed[0].ID)

		byTag, err := store.ListQuestions(ctx, models.OrderNewest, "[go]")
		require.NoError(t, err)
		assert.Equal(t, []string{old.ID}, ids(byTag))

		byWord, err := store.ListQuestions(ctx, models.OrderNewest, "CHANNEL")
		require.NoError(t, err)
		assert.Equal(t, []string{old.ID}, ids(byWord))
	})

	t.Run("UpsertTags and ListTags", func(t *testing.T) {
		store := New()
		ctx := context.Background()

		first, err := store.UpsertTags(ctx, []models.Tag{{Name: "go"}, {Name: "sql"}})
		require.NoError(t, err)
		second, err := store.UpsertTags(ctx, []models.Tag{{Name: "go"}})
		require.NoError(t, err)
		assert.Equal(t, first[0].ID, second[0].ID, "tag names are unique")

		q := newQuestion("tagged", time.Now())
		q.Tags = []string{first[0].ID}
		require.NoError(t, store.CreateQuestion(ctx, q))

		counts, err := store.ListTags(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TagCount{{Name: "go", QuestionCnt: 1}, {Name: "sql", QuestionCnt: 0}}, counts)
	})

	t.Run("Close", func(t *testing.T) {
		store := New()
		ctx := context.Background()
		q := newQuestion("closed", time.Now())
		require.NoError(t, store.CreateQuestion(ctx, q))

		assert.NoError(t, store.Close())

		_, err := store.GetQuestion(ctx, q.ID)
		assert.Error(t, err, "store is emptied on close")
	})
}

func ids(qs []*models.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}
