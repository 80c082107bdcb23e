package models

import "time"

// TargetType tags the parent of a comment.
type TargetType string

const (
	TargetQuestion TargetType = "question"
	TargetAnswer   TargetType = "answer"
)

func (t TargetType) Valid() bool {
	return t == TargetQuestion || t == TargetAnswer
}

// VoteDirection selects the vote set a toggle applies to.
type VoteDirection string

const (
	Upvote   VoteDirection = "upvote"
	Downvote VoteDirection = "downvote"
)

func (d VoteDirection) Valid() bool {
	return d == Upvote || d == Downvote
}

// QuestionOrder is the sort order of the question list.
type QuestionOrder string

const (
	OrderNewest     QuestionOrder = "newest"
	OrderActive     QuestionOrder = "active"
	OrderUnanswered QuestionOrder = "unanswered"
	OrderMostViewed QuestionOrder = "mostViewed"
)

// Question is the stored form: tags, answers and comments hold reference ids.
type Question struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags"`
	Answers     []string  `json:"answers"`
	AskedBy     string    `json:"askedBy"`
	AskDateTime time.Time `json:"askDateTime"`
	Views       int       `json:"views"`
	UpVotes     []string  `json:"upVotes"`
	DownVotes   []string  `json:"downVotes"`
	Comments    []string  `json:"comments"`
}

// Answer is the stored form of an answer. QuestionID is never put on the wire.
type Answer struct {
	ID          string    `json:"_id"`
	QuestionID  string    `json:"-"`
	Text        string    `json:"text"`
	AnsBy       string    `json:"ansBy"`
	AnsDateTime time.Time `json:"ansDateTime"`
	Comments    []string  `json:"comments"`
}

type Comment struct {
	ID              string    `json:"_id"`
	Text            string    `json:"text"`
	CommentBy       string    `json:"commentBy"`
	CommentDateTime time.Time `json:"commentDateTime"`
}

type Tag struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TagCount is a tag together with the number of questions referencing it.
type TagCount struct {
	Name        string `json:"name"`
	QuestionCnt int    `json:"qcnt"`
}

// VoteSets is the state of a question's vote sets after a toggle.
type VoteSets struct {
	UpVotes   []string `json:"upVotes"`
	DownVotes []string `json:"downVotes"`
}

// QuestionDetail is a question with every reference resolved.
type QuestionDetail struct {
	ID          string         `json:"_id"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	Tags        []Tag          `json:"tags"`
	Answers     []AnswerDetail `json:"answers"`
	AskedBy     string         `json:"askedBy"`
	AskDateTime time.Time      `json:"askDateTime"`
	Views       int            `json:"views"`
	UpVotes     []string       `json:"upVotes"`
	DownVotes   []string       `json:"downVotes"`
	Comments    []Comment      `json:"comments"`
}

// AnswerDetail is an answer with its comments resolved.
type AnswerDetail struct {
	ID          string    `json:"_id"`
	Text        string    `json:"text"`
	AnsBy       string    `json:"ansBy"`
	AnsDateTime time.Time `json:"ansDateTime"`
	Comments    []Comment `json:"comments"`
}

// CommentThread is the comment list of one question or answer.
type CommentThread struct {
	ID       string    `json:"_id"`
	Comments []Comment `json:"comments"`
}
