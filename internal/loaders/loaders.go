// Package loaders resolves stored reference ids into records. A Loaders value batches
// every lookup issued while one read is being assembled, so populating a question with
// its answers and all of their comments costs one store call per collection.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/graph-gophers/dataloader/v7"
)

const batchWait = 2 * time.Millisecond

// Loaders must not outlive one read: the loaders cache results and a read issued
// after a write has to see the write.
type Loaders struct {
	answers  *dataloader.Loader[string, *models.Answer]
	comments *dataloader.Loader[string, *models.Comment]
	tags     *dataloader.Loader[string, *models.Tag]
}

func New(store storage.Storage) *Loaders {
	return &Loaders{
		answers: dataloader.NewBatchedLoader(
			batchFunc(store.GetAnswersByIDs, func(a *models.Answer) string { return a.ID }),
			dataloader.WithWait[string, *models.Answer](batchWait),
		),
		comments: dataloader.NewBatchedLoader(
			batchFunc(store.GetCommentsByIDs, func(c *models.Comment) string { return c.ID }),
			dataloader.WithWait[string, *models.Comment](batchWait),
		),
		tags: dataloader.NewBatchedLoader(
			batchFunc(store.GetTagsByIDs, func(t *models.Tag) string { return t.ID }),
			dataloader.WithWait[string, *models.Tag](batchWait),
		),
	}
}

// batchFunc adapts a store batch reader. Keys with no record resolve to storage.ErrNotFound.
func batchFunc[V any](fetch func(context.Context, []string) ([]V, error), key func(V) string) dataloader.BatchFunc[string, V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[V] {
		results := make([]*dataloader.Result[V], len(keys))
		records, err := fetch(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[V]{Error: err}
			}
			return results
		}

		byID := make(map[string]V, len(records))
		for _, r := range records {
			byID[key(r)] = r
		}
		for i, k := range keys {
			if r, ok := byID[k]; ok {
				results[i] = &dataloader.Result[V]{Data: r}
			} else {
				results[i] = &dataloader.Result[V]{Error: storage.ErrNotFound}
			}
		}
		return results
	}
}

// collect loads every key in one batch and drops keys whose record is gone.
func collect[V any](ctx context.Context, l *dataloader.Loader[string, V], keys []string) ([]V, error) {
	thunks := make([]dataloader.Thunk[V], len(keys))
	for i, k := range keys {
		thunks[i] = l.Load(ctx, k)
	}
	out := make([]V, 0, len(keys))
	for i, thunk := range thunks {
		v, err := thunk()
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Comments resolves a comment id list.
func (l *Loaders) Comments(ctx context.Context, ids []string) ([]models.Comment, error) {
	loaded, err := collect(ctx, l.comments, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, len(loaded))
	for i, c := range loaded {
		out[i] = *c
	}
	return out, nil
}

// Answer resolves an answer by id together with its comments.
func (l *Loaders) Answer(ctx context.Context, id string) (*models.AnswerDetail, error) {
	a, err := l.answers.Load(ctx, id)()
	if err != nil {
		return nil, err
	}
	comments, err := l.Comments(ctx, a.Comments)
	if err != nil {
		return nil, err
	}
	return &models.AnswerDetail{
		ID:          a.ID,
		Text:        a.Text,
		AnsBy:       a.AnsBy,
		AnsDateTime: a.AnsDateTime,
		Comments:    comments,
	}, nil
}

// Question populates tags, answers and every comment of a stored question.
func (l *Loaders) Question(ctx context.Context, q *models.Question) (*models.QuestionDetail, error) {
	tagThunks := make([]dataloader.Thunk[*models.Tag], len(q.Tags))
	for i, id := range q.Tags {
		tagThunks[i] = l.tags.Load(ctx, id)
	}
	answers, err := collect(ctx, l.answers, q.Answers)
	if err != nil {
		return nil, fmt.Errorf("populate answers: %w", err)
	}

	// Queue the question's comments and every answer's comments before resolving any
	// of them so they share a batch.
	questionComments := make([]dataloader.Thunk[*models.Comment], len(q.Comments))
	for i, id := range q.Comments {
		questionComments[i] = l.comments.Load(ctx, id)
	}
	answerComments := make([][]dataloader.Thunk[*models.Comment], len(answers))
	for i, a := range answers {
		answerComments[i] = make([]dataloader.Thunk[*models.Comment], len(a.Comments))
		for j, id := range a.Comments {
			answerComments[i][j] = l.comments.Load(ctx, id)
		}
	}

	detail := &models.QuestionDetail{
		ID:          q.ID,
		Title:       q.Title,
		Text:        q.Text,
		Tags:        []models.Tag{},
		Answers:     make([]models.AnswerDetail, 0, len(answers)),
		AskedBy:     q.AskedBy,
		AskDateTime: q.AskDateTime,
		Views:       q.Views,
		UpVotes:     q.UpVotes,
		DownVotes:   q.DownVotes,
	}

	for _, thunk := range tagThunks {
		t, err := thunk()
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("populate tags: %w", err)
		}
		detail.Tags = append(detail.Tags, *t)
	}
	if detail.Comments, err = resolve(questionComments); err != nil {
		return nil, fmt.Errorf("populate comments: %w", err)
	}
	for i, a := range answers {
		comments, err := resolve(answerComments[i])
		if err != nil {
			return nil, fmt.Errorf("populate answer %s comments: %w", a.ID, err)
		}
		detail.Answers = append(detail.Answers, models.AnswerDetail{
			ID:          a.ID,
			Text:        a.Text,
			AnsBy:       a.AnsBy,
			AnsDateTime: a.AnsDateTime,
			Comments:    comments,
		})
	}
	return detail, nil
}

func resolve(thunks []dataloader.Thunk[*models.Comment]) ([]models.Comment, error) {
	out := make([]models.Comment, 0, len(thunks))
	for _, thunk := range thunks {
		c, err := thunk()
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}
