package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/config"
	"github.com/ButyrinIA/forum/internal/events"
	"github.com/ButyrinIA/forum/internal/forum"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/realtime"
	"github.com/ButyrinIA/forum/internal/server"
	"github.com/ButyrinIA/forum/internal/session"
	"github.com/ButyrinIA/forum/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	api    *API
	hub    *realtime.Hub
	wsURL  string
	store  *memory.MemoryStorage
	server *httptest.Server
}

func startServer(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	store := memory.New()
	hub := realtime.NewHub(zap.NewNop(), nil, 0)
	service := forum.New(store, hub, nil)
	srv := server.New(cfg, service, hub, session.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL), nil, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{
		api:    NewAPI(ts.URL, ts.Client()),
		hub:    hub,
		wsURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket",
		store:  store,
		server: ts,
	}
}

func (e *testEnv) dial(t *testing.T) *Socket {
	t.Helper()
	before := e.hub.Count()
	s, err := Dial(context.Background(), e.wsURL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.Eventually(t, func() bool { return e.hub.Count() == before+1 }, time.Second, 10*time.Millisecond)
	return s
}

func addQuestion(t *testing.T, api *API) *models.QuestionDetail {
	t.Helper()
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	q, err := api.AddQuestion(context.Background(), forum.AddQuestionRequest{
		Title:       "Programmatically navigate using React router",
		Text:        "the alert shows the proper index for the li clicked",
		Tags:        []forum.TagInput{{Name: "react"}},
		AskedBy:     "q_by1",
		AskDateTime: &ts,
	})
	require.NoError(t, err)
	return q
}

func TestSocket_OnOff(t *testing.T) {
	s := &Socket{listeners: make(map[string][]*listener)}

	var first, second int
	offFirst := s.On(events.ViewsUpdate, func(json.RawMessage) { first++ })
	offSecond := s.On(events.ViewsUpdate, func(json.RawMessage) { second++ })
	assert.Equal(t, 2, s.Listeners(events.ViewsUpdate))

	s.Dispatch(events.ViewsUpdate, json.RawMessage(`{}`))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)

	offFirst()
	offFirst()
	assert.Equal(t, 1, s.Listeners(events.ViewsUpdate))

	s.Dispatch(events.ViewsUpdate, json.RawMessage(`{}`))
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)

	offSecond()
	assert.Zero(t, s.Listeners(events.ViewsUpdate))
	s.Dispatch(events.ViewsUpdate, json.RawMessage(`{}`))
	assert.Equal(t, 2, second)
}

func TestSocket_OffDuringDispatch(t *testing.T) {
	s := &Socket{listeners: make(map[string][]*listener)}

	var calls int
	var off func()
	off = s.On(events.VoteUpdate, func(json.RawMessage) {
		calls++
		off()
	})
	s.On(events.VoteUpdate, func(json.RawMessage) { calls++ })

	s.Dispatch(events.VoteUpdate, nil)
	assert.Equal(t, 2, calls)
	s.Dispatch(events.VoteUpdate, nil)
	assert.Equal(t, 3, calls)
}

func TestSocket_ReceivesEvents(t *testing.T) {
	env := startServer(t)
	q := addQuestion(t, env.api)
	socket := env.dial(t)

	got := make(chan events.CommentUpdatePayload, 1)
	off := socket.On(events.CommentUpdate, func(data json.RawMessage) {
		var p events.CommentUpdatePayload
		if err := json.Unmarshal(data, &p); err == nil {
			got <- p
		}
	})
	defer off()

	ts := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	comment, err := env.api.AddComment(context.Background(), forum.AddCommentRequest{
		ID:      q.ID,
		Type:    models.TargetQuestion,
		Comment: &forum.CommentInput{Text: "This is a test comment", CommentBy: "dummyUserId", CommentDateTime: &ts},
	})
	require.NoError(t, err)

	select {
	case p := <-got:
		assert.Equal(t, models.TargetQuestion, p.Type)
		assert.Equal(t, q.ID, p.Result.ID)
		require.Len(t, p.Result.Comments, 1)
		assert.Equal(t, comment.ID, p.Result.Comments[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no commentUpdate received")
	}
}

func TestSocket_Close(t *testing.T) {
	env := startServer(t)
	socket := env.dial(t)

	require.NoError(t, socket.Close())
	<-socket.Done()
	assert.NoError(t, socket.Err())
	require.Eventually(t, func() bool { return env.hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAPI(t *testing.T) {
	env := startServer(t)
	ctx := context.Background()
	q := addQuestion(t, env.api)

	fetched, err := env.api.GetQuestion(ctx, q.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.Views)

	res, err := env.api.Vote(ctx, q.ID, "alice", models.Upvote)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.UpVotes)

	ts := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	ans, err := env.api.AddAnswer(ctx, forum.AddAnswerRequest{
		QID: q.ID,
		Ans: &forum.AnswerInput{Text: "Use useNavigate", AnsBy: "ans_by1", AnsDateTime: &ts},
	})
	require.NoError(t, err)
	assert.Equal(t, "Use useNavigate", ans.Text)

	list, err := env.api.GetQuestions(ctx, models.OrderActive, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Answers, 1)

	tags, err := env.api.GetTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TagCount{{Name: "react", QuestionCnt: 1}}, tags)

	token, err := env.api.Token(ctx, "bob")
	require.NoError(t, err)
	res, err = env.api.WithToken(token).Vote(ctx, q.ID, "", models.Downvote)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, res.DownVotes)

	_, err = env.api.AddComment(ctx, forum.AddCommentRequest{ID: q.ID})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, "Invalid request", statusErr.Body)
}
