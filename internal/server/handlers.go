package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ButyrinIA/forum/internal/forum"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/session"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// failureResponse is the body of a failed write.
type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req forum.AddCommentRequest
	if !decode(w, r, &req) {
		return
	}
	comment, err := s.service.AddComment(r.Context(), sess, req)
	if err != nil {
		s.fail(w, sess, err, "Error when adding comment")
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *Server) addAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req forum.AddAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	answer, err := s.service.AddAnswer(r.Context(), sess, req)
	if err != nil {
		s.fail(w, sess, err, "Error when adding answer")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) addQuestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req forum.AddQuestionRequest
	if !decode(w, r, &req) {
		return
	}
	question, err := s.service.AddQuestion(r.Context(), sess, req)
	if err != nil {
		s.fail(w, sess, err, "Error when saving question")
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (s *Server) vote(direction models.VoteDirection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		var req forum.VoteRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Username == "" {
			req.Username = sess.Username
		}
		req.Direction = direction

		result, err := s.service.CastVote(r.Context(), sess, req)
		if err != nil {
			s.fail(w, sess, err, "Error when voting")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// getQuestionByID returns the question populated and counts the fetch as a view.
func (s *Server) getQuestionByID(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	req := forum.ViewRequest{
		QID:      chi.URLParam(r, "qid"),
		Username: r.URL.Query().Get("username"),
	}
	if req.Username == "" {
		req.Username = sess.Username
	}
	question, err := s.service.RecordView(r.Context(), sess, req)
	if err != nil {
		s.fail(w, sess, err, "Error when fetching question by id")
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (s *Server) getQuestions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	order := models.QuestionOrder(r.URL.Query().Get("order"))
	questions, err := s.service.GetQuestions(r.Context(), order, r.URL.Query().Get("search"))
	if err != nil {
		s.fail(w, sess, err, "Error when fetching questions")
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) getTags(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	tags, err := s.service.GetTags(r.Context())
	if err != nil {
		s.fail(w, sess, err, "Error when fetching tags")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeText(w, http.StatusBadRequest, forum.ErrInvalidRequest)
		return
	}
	token, exp, err := s.tokens.Issue(username)
	if err != nil {
		s.logger.Error("issue token", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Error when issuing token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
}

// session builds the caller's session. A bearer token is optional, but one that is
// present has to verify.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess := session.Anonymous(chimiddleware.GetReqID(r.Context()), s.logger)

	header := r.Header.Get("Authorization")
	if header == "" {
		return sess, true
	}
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		writeText(w, http.StatusUnauthorized, "Unauthorized")
		return session.Session{}, false
	}
	username, err := s.tokens.Verify(raw)
	if err != nil {
		sess.Log().Debug("rejected token", zap.Error(err))
		writeText(w, http.StatusUnauthorized, "Unauthorized")
		return session.Session{}, false
	}
	return sess.WithUser(username), true
}

// fail maps a service error onto the response contract shared by all routes.
func (s *Server) fail(w http.ResponseWriter, sess session.Session, err error, prefix string) {
	var ferr *forum.Error
	if !errors.As(err, &ferr) {
		ferr = &forum.Error{Kind: forum.KindUnhandled, Msg: "unexpected error", Err: err}
	}

	switch ferr.Kind {
	case forum.KindInvalidRequest:
		sess.Log().Debug("invalid request", zap.String("op", ferr.Op), zap.Error(ferr.Err))
		writeText(w, http.StatusBadRequest, forum.ErrInvalidRequest)
	case forum.KindPersistence:
		sess.Log().Error("write failed", zap.String("op", ferr.Op), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failureResponse{Success: false, Error: ferr.Cause()})
	default:
		sess.Log().Error("request failed", zap.String("op", ferr.Op), zap.Stringer("kind", ferr.Kind), zap.Error(err))
		writeText(w, http.StatusInternalServerError, prefix+": "+ferr.Cause())
	}
}

// decode reads a JSON body of at most maxBodyBytes. A malformed or oversized body is
// answered as an invalid request.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeText(w, http.StatusBadRequest, forum.ErrInvalidRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
