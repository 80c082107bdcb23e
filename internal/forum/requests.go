package forum

import (
	"time"

	"github.com/ButyrinIA/forum/internal/models"
)

type CommentInput struct {
	Text            string     `json:"text" validate:"required"`
	CommentBy       string     `json:"commentBy" validate:"required"`
	CommentDateTime *time.Time `json:"commentDateTime" validate:"required"`
}

// AddCommentRequest is the body of POST /comment/addComment. ID names the parent
// question or answer.
type AddCommentRequest struct {
	ID      string            `json:"id" validate:"required"`
	Type    models.TargetType `json:"type" validate:"required,oneof=question answer"`
	Comment *CommentInput     `json:"comment" validate:"required"`
}

type AnswerInput struct {
	Text        string     `json:"text" validate:"required"`
	AnsBy       string     `json:"ansBy" validate:"required"`
	AnsDateTime *time.Time `json:"ansDateTime" validate:"required"`
}

type AddAnswerRequest struct {
	QID string       `json:"qid" validate:"required"`
	Ans *AnswerInput `json:"ans" validate:"required"`
}

type TagInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type AddQuestionRequest struct {
	Title       string     `json:"title" validate:"required"`
	Text        string     `json:"text" validate:"required"`
	Tags        []TagInput `json:"tags" validate:"required,min=1,dive"`
	AskedBy     string     `json:"askedBy" validate:"required"`
	AskDateTime *time.Time `json:"askDateTime" validate:"required"`
}

type VoteRequest struct {
	QID       string               `json:"qid" validate:"required"`
	Username  string               `json:"username" validate:"required"`
	Direction models.VoteDirection `json:"-" validate:"required,oneof=upvote downvote"`
}

// VoteResult is returned to the voter and mirrors the broadcast vote sets.
type VoteResult struct {
	Msg       string   `json:"msg"`
	UpVotes   []string `json:"upVotes"`
	DownVotes []string `json:"downVotes"`
}

type ViewRequest struct {
	QID string `validate:"required"`
	// Username is informational; every call counts as one view.
	Username string
}
