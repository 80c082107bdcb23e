// Package forum implements the forum's mutation and query operations. Every mutation
// validates its input, writes through the store's atomic operations, reads the result
// back populated, and only then publishes the matching event.
package forum

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ButyrinIA/forum/internal/events"
	"github.com/ButyrinIA/forum/internal/loaders"
	"github.com/ButyrinIA/forum/internal/metrics"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/session"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

const (
	OpAddComment  = "addComment"
	OpAddAnswer   = "addAnswer"
	OpAddQuestion = "addQuestion"
	OpVote        = "vote"
	OpView        = "view"
)

type Service struct {
	store     storage.Storage
	publisher events.Publisher
	metrics   *metrics.Collector
	validate  *validator.Validate
	newID     func() string
}

// New returns a Service. collector may be nil.
func New(store storage.Storage, publisher events.Publisher, collector *metrics.Collector) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   collector,
		validate:  validator.New(),
		newID:     uuid.NewString,
	}
}

func (s *Service) AddComment(ctx context.Context, sess session.Session, req AddCommentRequest) (comment *models.Comment, err error) {
	defer s.observe(OpAddComment, &err)

	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(OpAddComment, err)
	}
	if req.Comment.CommentDateTime.IsZero() {
		return nil, invalid(OpAddComment, errors.New("zero commentDateTime"))
	}

	comment = &models.Comment{
		ID:              s.newID(),
		Text:            req.Comment.Text,
		CommentBy:       req.Comment.CommentBy,
		CommentDateTime: req.Comment.CommentDateTime.UTC(),
	}
	if err := s.store.AddComment(ctx, req.ID, req.Type, comment); err != nil {
		return nil, writeFailed(OpAddComment, "Error when saving a comment", string(req.Type), err)
	}

	thread, err := s.commentThread(ctx, req.ID, req.Type)
	if err != nil {
		return nil, readBack(OpAddComment, err)
	}

	s.publish(ctx, sess, events.NewCommentUpdate(req.Type, *thread))
	sess.Log().Info("comment added",
		zap.String("target", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("comment", comment.ID))
	return comment, nil
}

// commentThread reads the full, populated comment list of a question or answer.
func (s *Service) commentThread(ctx context.Context, id string, targetType models.TargetType) (*models.CommentThread, error) {
	l := loaders.New(s.store)
	if targetType == models.TargetAnswer {
		answer, err := l.Answer(ctx, id)
		if err != nil {
			return nil, err
		}
		return &models.CommentThread{ID: answer.ID, Comments: answer.Comments}, nil
	}

	question, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := l.Comments(ctx, question.Comments)
	if err != nil {
		return nil, err
	}
	return &models.CommentThread{ID: question.ID, Comments: comments}, nil
}

func (s *Service) AddAnswer(ctx context.Context, sess session.Session, req AddAnswerRequest) (answer *models.AnswerDetail, err error) {
	defer s.observe(OpAddAnswer, &err)

	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(OpAddAnswer, err)
	}
	if req.Ans.AnsDateTime.IsZero() {
		return nil, invalid(OpAddAnswer, errors.New("zero ansDateTime"))
	}

	stored := &models.Answer{
		ID:          s.newID(),
		QuestionID:  req.QID,
		Text:        req.Ans.Text,
		AnsBy:       req.Ans.AnsBy,
		AnsDateTime: req.Ans.AnsDateTime.UTC(),
		Comments:    []string{},
	}
	if err := s.store.CreateAnswer(ctx, req.QID, stored); err != nil {
		return nil, writeFailed(OpAddAnswer, "Error when saving an answer", "question", err)
	}

	answer, err = loaders.New(s.store).Answer(ctx, stored.ID)
	if err != nil {
		return nil, readBack(OpAddAnswer, err)
	}

	s.publish(ctx, sess, events.NewAnswerUpdate(req.QID, *answer))
	sess.Log().Info("answer added", zap.String("qid", req.QID), zap.String("answer", answer.ID))
	return answer, nil
}

func (s *Service) AddQuestion(ctx context.Context, sess session.Session, req AddQuestionRequest) (question *models.QuestionDetail, err error) {
	defer s.observe(OpAddQuestion, &err)

	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(OpAddQuestion, err)
	}
	if req.AskDateTime.IsZero() {
		return nil, invalid(OpAddQuestion, errors.New("zero askDateTime"))
	}

	tags := make([]models.Tag, len(req.Tags))
	for i, t := range req.Tags {
		tags[i] = models.Tag{ID: s.newID(), Name: t.Name, Description: t.Description}
	}
	tags, err = s.store.UpsertTags(ctx, tags)
	if err != nil {
		return nil, persistence(OpAddQuestion, "Error when saving tags", err)
	}

	tagIDs := make([]string, len(tags))
	for i, t := range tags {
		tagIDs[i] = t.ID
	}
	stored := &models.Question{
		ID:          s.newID(),
		Title:       req.Title,
		Text:        req.Text,
		Tags:        tagIDs,
		Answers:     []string{},
		AskedBy:     req.AskedBy,
		AskDateTime: req.AskDateTime.UTC(),
		UpVotes:     []string{},
		DownVotes:   []string{},
		Comments:    []string{},
	}
	if err := s.store.CreateQuestion(ctx, stored); err != nil {
		return nil, persistence(OpAddQuestion, "Error when saving a question", err)
	}

	question, err = s.populate(ctx, stored.ID)
	if err != nil {
		return nil, readBack(OpAddQuestion, err)
	}

	s.publish(ctx, sess, events.NewQuestionUpdate(question))
	sess.Log().Info("question added", zap.String("qid", question.ID))
	return question, nil
}

// CastVote toggles the caller's vote in the requested direction.
func (s *Service) CastVote(ctx context.Context, sess session.Session, req VoteRequest) (result *VoteResult, err error) {
	defer s.observe(OpVote, &err)

	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(OpVote, err)
	}

	sets, err := s.store.ToggleVote(ctx, req.QID, req.Username, req.Direction)
	if err != nil {
		return nil, writeFailed(OpVote, "Error when voting", "question", err)
	}

	s.publish(ctx, sess, events.NewVoteUpdate(req.QID, *sets))
	return &VoteResult{
		Msg:       voteMessage(req.Direction, *sets, req.Username),
		UpVotes:   sets.UpVotes,
		DownVotes: sets.DownVotes,
	}, nil
}

func voteMessage(direction models.VoteDirection, sets models.VoteSets, username string) string {
	if direction == models.Upvote {
		if slices.Contains(sets.UpVotes, username) {
			return "Question upvoted successfully"
		}
		return "Upvote cancelled successfully"
	}
	if slices.Contains(sets.DownVotes, username) {
		return "Question downvoted successfully"
	}
	return "Downvote cancelled successfully"
}

// RecordView counts one view of a question and returns it populated. Views are not
// deduplicated per viewer.
func (s *Service) RecordView(ctx context.Context, sess session.Session, req ViewRequest) (question *models.QuestionDetail, err error) {
	defer s.observe(OpView, &err)

	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(OpView, err)
	}

	if _, err := s.store.IncrementViews(ctx, req.QID); err != nil {
		return nil, writeFailed(OpView, "Error when recording a view", "question", err)
	}

	question, err = s.populate(ctx, req.QID)
	if err != nil {
		return nil, readBack(OpView, err)
	}

	s.publish(ctx, sess, events.NewViewsUpdate(question))
	return question, nil
}

// GetQuestions lists questions populated, in the requested order. An unknown order
// falls back to newest first.
func (s *Service) GetQuestions(ctx context.Context, order models.QuestionOrder, search string) ([]*models.QuestionDetail, error) {
	questions, err := s.store.ListQuestions(ctx, order, search)
	if err != nil {
		return nil, persistence("getQuestions", "Error when fetching questions", err)
	}

	// One loader set for the whole list so every question's lookups share batches.
	l := loaders.New(s.store)
	out, err := iter.MapErr(questions, func(q **models.Question) (*models.QuestionDetail, error) {
		return l.Question(ctx, *q)
	})
	if err != nil {
		return nil, persistence("getQuestions", "Error when fetching questions", err)
	}
	return out, nil
}

func (s *Service) GetTags(ctx context.Context) ([]models.TagCount, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, persistence("getTags", "Error when fetching tags", err)
	}
	return tags, nil
}

func (s *Service) populate(ctx context.Context, qid string) (*models.QuestionDetail, error) {
	q, err := s.store.GetQuestion(ctx, qid)
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", qid, err)
	}
	return loaders.New(s.store).Question(ctx, q)
}

// publish hands the event to the broadcaster. A failure is logged; the write stands.
func (s *Service) publish(ctx context.Context, sess session.Session, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		sess.Log().Warn("publish failed", zap.String("event", event.Name), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(event.Name).Inc()
	}
}

func (s *Service) observe(op string, err *error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if *err != nil {
		outcome = KindOf(*err).String()
	}
	s.metrics.Mutations.WithLabelValues(op, outcome).Inc()
}
