// Package viewstate keeps a client's local copy of one question page in sync with the
// broadcast events. Answers and comments live in flat maps keyed by id and the
// question holds ordered id lists, so a patch touches one entry instead of the tree.
package viewstate

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ButyrinIA/forum/internal/client"
	"github.com/ButyrinIA/forum/internal/events"
	"github.com/ButyrinIA/forum/internal/models"
	"go.uber.org/zap"
)

type State int

const (
	Loading State = iota
	Loaded
	// Failed means the initial fetch errored. The view stays empty and ignores patches.
	Failed
	Unmounted
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	case Unmounted:
		return "unmounted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Subscriber registers event listeners. *client.Socket satisfies it.
type Subscriber interface {
	On(event string, h client.Handler) (off func())
}

// Fetcher loads the populated question for the initial render.
type Fetcher func(ctx context.Context) (*models.QuestionDetail, error)

// Answer is one answer node of the arena. Nodes are never modified in place; a patch
// installs a new node.
type Answer struct {
	ID          string
	Text        string
	AnsBy       string
	AnsDateTime time.Time
	CommentIDs  []string
}

type View struct {
	qid    string
	logger *zap.Logger

	mu    sync.Mutex
	state State
	err   error
	offs  []func()

	title       string
	text        string
	tags        []models.Tag
	askedBy     string
	askDateTime time.Time
	views       int
	upVotes     []string
	downVotes   []string
	answerIDs   []string
	commentIDs  []string
	answers     map[string]*Answer
	comments    map[string]models.Comment

	changed chan struct{}
}

func New(qid string, logger *zap.Logger) *View {
	return &View{
		qid:     qid,
		logger:  logger.Named("view").With(zap.String("qid", qid)),
		changed: make(chan struct{}, 1),
	}
}

// Mount registers the view's listeners and performs the initial fetch. Patches that
// arrive before the fetch completes are dropped. A write that lands after the server
// read the question but before the response arrives is in neither the fetched tree
// nor the view; it shows up with the next patch that carries it (a later commentUpdate
// for the same parent, or a viewsUpdate).
func (v *View) Mount(ctx context.Context, sub Subscriber, fetch Fetcher) error {
	v.mu.Lock()
	if v.state != Loading || v.offs != nil {
		v.mu.Unlock()
		return fmt.Errorf("view %s already mounted", v.qid)
	}
	v.offs = []func(){
		sub.On(events.AnswerUpdate, v.handle(v.applyAnswerUpdate)),
		sub.On(events.ViewsUpdate, v.handle(v.applyViewsUpdate)),
		sub.On(events.CommentUpdate, v.handle(v.applyCommentUpdate)),
		sub.On(events.VoteUpdate, v.handle(v.applyVoteUpdate)),
	}
	v.mu.Unlock()

	question, err := fetch(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Unmounted {
		return nil
	}
	if err != nil {
		v.state = Failed
		v.err = err
		v.notify()
		return fmt.Errorf("fetch question %s: %w", v.qid, err)
	}
	if question.ID != v.qid {
		v.state = Failed
		v.err = fmt.Errorf("fetched question %s", question.ID)
		v.notify()
		return v.err
	}
	v.load(question)
	v.state = Loaded
	v.notify()
	return nil
}

// Unmount removes every listener Mount registered and discards the local state.
func (v *View) Unmount() {
	v.mu.Lock()
	offs := v.offs
	v.offs = nil
	v.state = Unmounted
	v.answers = nil
	v.comments = nil
	v.answerIDs = nil
	v.commentIDs = nil
	v.tags = nil
	v.upVotes = nil
	v.downVotes = nil
	v.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the fetch error of a Failed view.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Changed receives a value after any state change or applied patch. Signals coalesce.
func (v *View) Changed() <-chan struct{} {
	return v.changed
}

func (v *View) notify() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// Answer returns the arena node for id, or nil.
func (v *View) Answer(id string) *Answer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.answers[id]
}

// Snapshot renders the populated question. It returns nil unless the view is Loaded.
func (v *View) Snapshot() *models.QuestionDetail {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Loaded {
		return nil
	}

	q := &models.QuestionDetail{
		ID:          v.qid,
		Title:       v.title,
		Text:        v.text,
		Tags:        slices.Clone(v.tags),
		Answers:     make([]models.AnswerDetail, 0, len(v.answerIDs)),
		AskedBy:     v.askedBy,
		AskDateTime: v.askDateTime,
		Views:       v.views,
		UpVotes:     slices.Clone(v.upVotes),
		DownVotes:   slices.Clone(v.downVotes),
		Comments:    v.resolve(v.commentIDs),
	}
	for _, id := range v.answerIDs {
		a := v.answers[id]
		q.Answers = append(q.Answers, models.AnswerDetail{
			ID:          a.ID,
			Text:        a.Text,
			AnsBy:       a.AnsBy,
			AnsDateTime: a.AnsDateTime,
			Comments:    v.resolve(a.CommentIDs),
		})
	}
	return q
}

func (v *View) resolve(ids []string) []models.Comment {
	out := make([]models.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := v.comments[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// AddComment applies the response of the caller's own comment request. The matching
// commentUpdate may arrive before or after it; the comment is only listed once.
func (v *View) AddComment(targetType models.TargetType, targetID string, comment models.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Loaded {
		return
	}

	switch targetType {
	case models.TargetQuestion:
		if targetID != v.qid || slices.Contains(v.commentIDs, comment.ID) {
			return
		}
		v.comments[comment.ID] = comment
		v.commentIDs = append(slices.Clip(v.commentIDs), comment.ID)
	case models.TargetAnswer:
		a, ok := v.answers[targetID]
		if !ok || slices.Contains(a.CommentIDs, comment.ID) {
			return
		}
		v.comments[comment.ID] = comment
		next := *a
		next.CommentIDs = append(slices.Clip(a.CommentIDs), comment.ID)
		v.answers[targetID] = &next
	default:
		return
	}
	v.notify()
}

// handle runs a reducer under the lock, only while the view is Loaded.
func (v *View) handle(apply func(json.RawMessage) (bool, error)) client.Handler {
	return func(data json.RawMessage) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.state != Loaded {
			return
		}
		applied, err := apply(data)
		if err != nil {
			v.logger.Warn("discarding patch", zap.Error(err))
			return
		}
		if applied {
			v.notify()
		}
	}
}

// load replaces the whole tree. mu must be held.
func (v *View) load(q *models.QuestionDetail) {
	v.title = q.Title
	v.text = q.Text
	v.tags = slices.Clone(q.Tags)
	v.askedBy = q.AskedBy
	v.askDateTime = q.AskDateTime
	v.views = q.Views
	v.upVotes = slices.Clone(q.UpVotes)
	v.downVotes = slices.Clone(q.DownVotes)

	v.comments = make(map[string]models.Comment)
	v.commentIDs = v.storeComments(q.Comments)
	v.answers = make(map[string]*Answer, len(q.Answers))
	v.answerIDs = make([]string, 0, len(q.Answers))
	for _, a := range q.Answers {
		if _, dup := v.answers[a.ID]; dup {
			continue
		}
		v.answers[a.ID] = v.answerNode(a)
		v.answerIDs = append(v.answerIDs, a.ID)
	}
}

func (v *View) storeComments(comments []models.Comment) []string {
	ids := make([]string, len(comments))
	for i, c := range comments {
		v.comments[c.ID] = c
		ids[i] = c.ID
	}
	return ids
}

// replaceComments stores comments as the new list of one parent and drops the entries
// of old that are no longer listed. Comment ids belong to a single parent.
func (v *View) replaceComments(old []string, comments []models.Comment) []string {
	ids := v.storeComments(comments)
	for _, id := range old {
		if !slices.Contains(ids, id) {
			delete(v.comments, id)
		}
	}
	return ids
}

func (v *View) answerNode(a models.AnswerDetail) *Answer {
	return &Answer{
		ID:          a.ID,
		Text:        a.Text,
		AnsBy:       a.AnsBy,
		AnsDateTime: a.AnsDateTime,
		CommentIDs:  v.storeComments(a.Comments),
	}
}

func (v *View) applyAnswerUpdate(data json.RawMessage) (bool, error) {
	var p events.AnswerUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("decode answerUpdate: %w", err)
	}
	if p.QID != v.qid {
		return false, nil
	}
	if _, exists := v.answers[p.Answer.ID]; exists {
		return false, nil
	}
	v.answers[p.Answer.ID] = v.answerNode(p.Answer)
	v.answerIDs = append(slices.Clip(v.answerIDs), p.Answer.ID)
	return true, nil
}

func (v *View) applyCommentUpdate(data json.RawMessage) (bool, error) {
	var p events.CommentUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("decode commentUpdate: %w", err)
	}
	switch p.Type {
	case models.TargetQuestion:
		if p.Result.ID != v.qid {
			return false, nil
		}
		v.commentIDs = v.replaceComments(v.commentIDs, p.Result.Comments)
		return true, nil
	case models.TargetAnswer:
		a, ok := v.answers[p.Result.ID]
		if !ok {
			return false, nil
		}
		next := *a
		next.CommentIDs = v.replaceComments(a.CommentIDs, p.Result.Comments)
		v.answers[a.ID] = &next
		return true, nil
	}
	return false, fmt.Errorf("commentUpdate with type %q", p.Type)
}

func (v *View) applyViewsUpdate(data json.RawMessage) (bool, error) {
	var q models.QuestionDetail
	if err := json.Unmarshal(data, &q); err != nil {
		return false, fmt.Errorf("decode viewsUpdate: %w", err)
	}
	if q.ID != v.qid {
		return false, nil
	}
	v.load(&q)
	return true, nil
}

func (v *View) applyVoteUpdate(data json.RawMessage) (bool, error) {
	var p events.VoteUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("decode voteUpdate: %w", err)
	}
	if p.QID != v.qid {
		return false, nil
	}
	v.upVotes = slices.Clone(p.UpVotes)
	v.downVotes = slices.Clone(p.DownVotes)
	return true, nil
}
