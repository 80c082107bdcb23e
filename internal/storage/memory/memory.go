package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/google/uuid"
)

// MemoryStorage хранит все коллекции в map. Каждый метод держит mu на всё
// чтение-изменение-запись, поэтому изменения одного вопроса не перемежаются.
type MemoryStorage struct {
	questions map[string]*models.Question
	order     []string
	answers   map[string]*models.Answer
	comments  map[string]*models.Comment
	tags      map[string]*models.Tag
	tagByName map[string]string
	mu        sync.RWMutex
}

func New() *MemoryStorage {
	return &MemoryStorage{
		questions: make(map[string]*models.Question),
		answers:   make(map[string]*models.Answer),
		comments:  make(map[string]*models.Comment),
		tags:      make(map[string]*models.Tag),
		tagByName: make(map[string]string),
	}
}

func (s *MemoryStorage) CreateQuestion(ctx context.Context, question *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.questions[question.ID]; exists {
		return fmt.Errorf("question %s already exists", question.ID)
	}
	q := cloneQuestion(question)
	s.questions[q.ID] = q
	s.order = append(s.order, q.ID)
	return nil
}

func (s *MemoryStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, exists := s.questions[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneQuestion(q), nil
}

func (s *MemoryStorage) ListQuestions(ctx context.Context, order models.QuestionOrder, search string) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := storage.ParseSearch(search)
	var result []*models.Question
	for _, id := range s.order {
		q := s.questions[id]
		if order == models.OrderUnanswered && len(q.Answers) > 0 {
			continue
		}
		if !filter.Match(q.Title, q.Text, s.tagNames(q.Tags)) {
			continue
		}
		result = append(result, cloneQuestion(q))
	}

	byNewest := func(i, j int) bool { return result[i].AskDateTime.After(result[j].AskDateTime) }
	switch order {
	case models.OrderMostViewed:
		sort.SliceStable(result, func(i, j int) bool {
			if result[i].Views != result[j].Views {
				return result[i].Views > result[j].Views
			}
			return byNewest(i, j)
		})
	case models.OrderActive:
		last := make(map[string]time.Time, len(result))
		for _, q := range result {
			last[q.ID] = s.lastAnswerTime(q)
		}
		sort.SliceStable(result, func(i, j int) bool {
			li, lj := last[result[i].ID], last[result[j].ID]
			if !li.Equal(lj) {
				return li.After(lj)
			}
			return byNewest(i, j)
		})
	default:
		sort.SliceStable(result, byNewest)
	}
	return result, nil
}

func (s *MemoryStorage) CreateAnswer(ctx context.Context, qid string, answer *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, exists := s.questions[qid]
	if !exists {
		return storage.ErrNotFound
	}
	a := *answer
	a.QuestionID = qid
	a.Comments = slices.Clone(answer.Comments)
	s.answers[a.ID] = &a
	q.Answers = append(q.Answers, a.ID)
	return nil
}

func (s *MemoryStorage) AddComment(ctx context.Context, targetID string, targetType models.TargetType, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list *[]string
	switch targetType {
	case models.TargetQuestion:
		q, exists := s.questions[targetID]
		if !exists {
			return storage.ErrNotFound
		}
		list = &q.Comments
	case models.TargetAnswer:
		a, exists := s.answers[targetID]
		if !exists {
			return storage.ErrNotFound
		}
		list = &a.Comments
	default:
		return fmt.Errorf("unknown comment target %q", targetType)
	}

	c := *comment
	s.comments[c.ID] = &c
	*list = append(*list, c.ID)
	return nil
}

func (s *MemoryStorage) ToggleVote(ctx context.Context, qid, username string, direction models.VoteDirection) (*models.VoteSets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, exists := s.questions[qid]
	if !exists {
		return nil, storage.ErrNotFound
	}

	target, opposite := &q.UpVotes, &q.DownVotes
	if direction == models.Downvote {
		target, opposite = &q.DownVotes, &q.UpVotes
	}
	if slices.Contains(*target, username) {
		*target = slices.DeleteFunc(*target, func(u string) bool { return u == username })
	} else {
		*target = append(*target, username)
	}
	*opposite = slices.DeleteFunc(*opposite, func(u string) bool { return u == username })

	return &models.VoteSets{
		UpVotes:   nonNil(slices.Clone(q.UpVotes)),
		DownVotes: nonNil(slices.Clone(q.DownVotes)),
	}, nil
}

func (s *MemoryStorage) IncrementViews(ctx context.Context, qid string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, exists := s.questions[qid]
	if !exists {
		return 0, storage.ErrNotFound
	}
	q.Views++
	return q.Views, nil
}

func (s *MemoryStorage) UpsertTags(ctx context.Context, tags []models.Tag) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.Tag, 0, len(tags))
	for _, t := range tags {
		if id, exists := s.tagByName[t.Name]; exists {
			result = append(result, *s.tags[id])
			continue
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		tag := t
		s.tags[tag.ID] = &tag
		s.tagByName[tag.Name] = tag.ID
		result = append(result, tag)
	}
	return result, nil
}

func (s *MemoryStorage) ListTags(ctx context.Context) ([]models.TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.tags))
	for _, q := range s.questions {
		for _, id := range q.Tags {
			counts[id]++
		}
	}
	result := make([]models.TagCount, 0, len(s.tags))
	for id, t := range s.tags {
		result = append(result, models.TagCount{Name: t.Name, QuestionCnt: counts[id]})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStorage) GetAnswersByIDs(ctx context.Context, ids []string) ([]*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Answer, 0, len(ids))
	for _, id := range ids {
		if a, exists := s.answers[id]; exists {
			cp := *a
			cp.Comments = slices.Clone(a.Comments)
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStorage) GetCommentsByIDs(ctx context.Context, ids []string) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Comment, 0, len(ids))
	for _, id := range ids {
		if c, exists := s.comments[id]; exists {
			cp := *c
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStorage) GetTagsByIDs(ctx context.Context, ids []string) ([]*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Tag, 0, len(ids))
	for _, id := range ids {
		if t, exists := s.tags[id]; exists {
			cp := *t
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = make(map[string]*models.Question)
	s.order = nil
	s.answers = make(map[string]*models.Answer)
	s.comments = make(map[string]*models.Comment)
	s.tags = make(map[string]*models.Tag)
	s.tagByName = make(map[string]string)
	return nil
}

func (s *MemoryStorage) tagNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, exists := s.tags[id]; exists {
			names = append(names, t.Name)
		}
	}
	return names
}

func (s *MemoryStorage) lastAnswerTime(q *models.Question) time.Time {
	var last time.Time
	for _, id := range q.Answers {
		if a, exists := s.answers[id]; exists && a.AnsDateTime.After(last) {
			last = a.AnsDateTime
		}
	}
	return last
}

func cloneQuestion(q *models.Question) *models.Question {
	cp := *q
	cp.Tags = nonNil(slices.Clone(q.Tags))
	cp.Answers = nonNil(slices.Clone(q.Answers))
	cp.UpVotes = nonNil(slices.Clone(q.UpVotes))
	cp.DownVotes = nonNil(slices.Clone(q.DownVotes))
	cp.Comments = nonNil(slices.Clone(q.Comments))
	return &cp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
