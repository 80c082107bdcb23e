package storage

import (
	"context"
	"errors"

	"github.com/ButyrinIA/forum/internal/models"
)

// ErrNotFound is returned when a target record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the document store. Every mutating method is applied atomically by the
// backend; callers never write back a whole document computed from an earlier read.
type Storage interface {
	CreateQuestion(ctx context.Context, question *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	ListQuestions(ctx context.Context, order models.QuestionOrder, search string) ([]*models.Question, error)

	// CreateAnswer stores the answer and appends its id to the question's answer list.
	CreateAnswer(ctx context.Context, qid string, answer *models.Answer) error
	// AddComment stores the comment and appends its id to the parent's comment list.
	AddComment(ctx context.Context, targetID string, targetType models.TargetType, comment *models.Comment) error
	// ToggleVote adds username to the direction's set, or removes it if already present,
	// and always removes it from the opposite set.
	ToggleVote(ctx context.Context, qid, username string, direction models.VoteDirection) (*models.VoteSets, error)
	// IncrementViews adds one to the view counter and returns the new value.
	IncrementViews(ctx context.Context, qid string) (int, error)

	UpsertTags(ctx context.Context, tags []models.Tag) ([]models.Tag, error)
	ListTags(ctx context.Context) ([]models.TagCount, error)

	GetAnswersByIDs(ctx context.Context, ids []string) ([]*models.Answer, error)
	GetCommentsByIDs(ctx context.Context, ids []string) ([]*models.Comment, error)
	GetTagsByIDs(ctx context.Context, ids []string) ([]*models.Tag, error)

	Close() error
}
