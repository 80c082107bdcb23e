// Package events defines the events broadcast after a successful mutation and the
// Publisher interface mutation handlers write them to. Delivery is best-effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ButyrinIA/forum/internal/models"
)

const (
	CommentUpdate  = "commentUpdate"
	AnswerUpdate   = "answerUpdate"
	ViewsUpdate    = "viewsUpdate"
	VoteUpdate     = "voteUpdate"
	QuestionUpdate = "questionUpdate"
)

type Event struct {
	Name    string
	Payload any
}

// Publisher delivers an event to every current subscriber. An error means the event
// was not handed to the transport; it never means a subscriber missed it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Envelope is the wire form of an event on the socket and on the relay channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func Encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.Name, err)
	}
	return json.Marshal(Envelope{Event: event.Name, Data: data})
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("envelope without event name")
	}
	return env, nil
}

type CommentUpdatePayload struct {
	Type   models.TargetType    `json:"type"`
	Result models.CommentThread `json:"result"`
}

type AnswerUpdatePayload struct {
	QID    string              `json:"qid"`
	Answer models.AnswerDetail `json:"answer"`
}

type VoteUpdatePayload struct {
	QID       string   `json:"qid"`
	UpVotes   []string `json:"upVotes"`
	DownVotes []string `json:"downVotes"`
}

func NewCommentUpdate(targetType models.TargetType, thread models.CommentThread) Event {
	return Event{Name: CommentUpdate, Payload: CommentUpdatePayload{Type: targetType, Result: thread}}
}

func NewAnswerUpdate(qid string, answer models.AnswerDetail) Event {
	return Event{Name: AnswerUpdate, Payload: AnswerUpdatePayload{QID: qid, Answer: answer}}
}

func NewViewsUpdate(question *models.QuestionDetail) Event {
	return Event{Name: ViewsUpdate, Payload: question}
}

func NewVoteUpdate(qid string, sets models.VoteSets) Event {
	return Event{Name: VoteUpdate, Payload: VoteUpdatePayload{QID: qid, UpVotes: sets.UpVotes, DownVotes: sets.DownVotes}}
}

func NewQuestionUpdate(question *models.QuestionDetail) Event {
	return Event{Name: QuestionUpdate, Payload: question}
}
