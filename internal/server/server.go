package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ButyrinIA/forum/internal/config"
	"github.com/ButyrinIA/forum/internal/forum"
	"github.com/ButyrinIA/forum/internal/metrics"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/session"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg     *config.Config
	service *forum.Service
	socket  http.Handler
	tokens  *session.Tokens
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New wires the HTTP surface. socket serves GET /socket; collector may be nil, in
// which case /metrics is not mounted.
func New(cfg *config.Config, service *forum.Service, socket http.Handler, tokens *session.Tokens, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		socket:  socket,
		tokens:  tokens,
		metrics: collector,
		logger:  logger.Named("http"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/token", s.issueToken)
	r.Get("/socket", s.socket.ServeHTTP)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/comment", func(r chi.Router) {
		r.Post("/addComment", s.addComment)
	})
	r.Route("/answer", func(r chi.Router) {
		r.Post("/addAnswer", s.addAnswer)
	})
	r.Route("/question", func(r chi.Router) {
		r.Get("/getQuestion", s.getQuestions)
		r.Get("/getQuestionById/{qid}", s.getQuestionByID)
		r.Post("/addQuestion", s.addQuestion)
		r.Post("/upvoteQuestion", s.vote(models.Upvote))
		r.Post("/downvoteQuestion", s.vote(models.Downvote))
	})
	r.Route("/tag", func(r chi.Router) {
		r.Get("/getTagsWithQuestionNumber", s.getTags)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Запуск сервера", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Остановка сервера")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
