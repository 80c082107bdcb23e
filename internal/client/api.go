package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ButyrinIA/forum/internal/forum"
	"github.com/ButyrinIA/forum/internal/models"
)

// StatusError is a non-200 answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// API calls the forum's REST routes.
type API struct {
	base  string
	http  *http.Client
	token string
}

// NewAPI returns a client for the server at baseURL. httpClient may be nil.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{base: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// WithToken returns a copy that sends token as a bearer credential.
func (a *API) WithToken(token string) *API {
	c := *a
	c.token = token
	return &c
}

func (a *API) Token(ctx context.Context, username string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := a.do(ctx, http.MethodGet, "/token?username="+url.QueryEscape(username), nil, &resp)
	return resp.Token, err
}

// GetQuestion fetches a question populated. The server counts every fetch as a view.
func (a *API) GetQuestion(ctx context.Context, qid, username string) (*models.QuestionDetail, error) {
	path := "/question/getQuestionById/" + url.PathEscape(qid)
	if username != "" {
		path += "?username=" + url.QueryEscape(username)
	}
	var q models.QuestionDetail
	if err := a.do(ctx, http.MethodGet, path, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (a *API) GetQuestions(ctx context.Context, order models.QuestionOrder, search string) ([]models.QuestionDetail, error) {
	query := url.Values{}
	query.Set("order", string(order))
	query.Set("search", search)
	var qs []models.QuestionDetail
	if err := a.do(ctx, http.MethodGet, "/question/getQuestion?"+query.Encode(), nil, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (a *API) AddQuestion(ctx context.Context, req forum.AddQuestionRequest) (*models.QuestionDetail, error) {
	var q models.QuestionDetail
	if err := a.do(ctx, http.MethodPost, "/question/addQuestion", req, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (a *API) AddComment(ctx context.Context, req forum.AddCommentRequest) (*models.Comment, error) {
	var c models.Comment
	if err := a.do(ctx, http.MethodPost, "/comment/addComment", req, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (a *API) AddAnswer(ctx context.Context, req forum.AddAnswerRequest) (*models.AnswerDetail, error) {
	var ans models.AnswerDetail
	if err := a.do(ctx, http.MethodPost, "/answer/addAnswer", req, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

func (a *API) Vote(ctx context.Context, qid, username string, direction models.VoteDirection) (*forum.VoteResult, error) {
	path := "/question/upvoteQuestion"
	if direction == models.Downvote {
		path = "/question/downvoteQuestion"
	}
	body := map[string]string{"qid": qid, "username": username}
	var res forum.VoteResult
	if err := a.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *API) GetTags(ctx context.Context) ([]models.TagCount, error) {
	var tags []models.TagCount
	if err := a.do(ctx, http.MethodGet, "/tag/getTagsWithQuestionNumber", nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
