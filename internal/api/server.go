// Package api exposes the JSON surface of the service: subscription
// management, operational stats, and the manual batch trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/0x0BSoD/dailyDigest/internal/dispatcher"
	"github.com/0x0BSoD/dailyDigest/internal/model"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type SubscriberStore interface {
	ByEmail(ctx context.Context, email string) (*model.Subscriber, error)
	Add(ctx context.Context, email string) (int64, error)
	Reactivate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	CountActive(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

type ArticleStore interface {
	Latest(ctx context.Context, limit uint64) ([]model.Article, error)
}

type DeliveryLogStore interface {
	CountByStatus(ctx context.Context, status string) (int64, error)
	LastBatchTime(ctx context.Context) (*time.Time, error)
}

type ArticleSource interface {
	Fetch(ctx context.Context) (model.Digest, error)
}

type BatchRunner interface {
	Run(ctx context.Context) (model.RunSummary, []model.SendResult, error)
}

type Server struct {
	db          *sqlx.DB
	subscribers SubscriberStore
	articles    ArticleStore
	logs        DeliveryLogStore
	source      ArticleSource
	runner      BatchRunner
}

func New(
	db *sqlx.DB,
	subscribers SubscriberStore,
	articles ArticleStore,
	logs DeliveryLogStore,
	source ArticleSource,
	runner BatchRunner,
) *Server {
	return &Server{
		db:          db,
		subscribers: subscribers,
		articles:    articles,
		logs:        logs,
		source:      source,
		runner:      runner,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/subscribe", s.handleSubscribe)
	mux.HandleFunc("POST /api/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/news", s.handleNews)
	mux.HandleFunc("POST /api/send-now", s.handleSendNow)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	email, ok := s.readEmail(w, r)
	if !ok {
		return
	}

	existing, err := s.subscribers.ByEmail(r.Context(), email)
	if err != nil {
		s.internalError(w, "subscribe", err)
		return
	}

	switch {
	case existing == nil:
		if _, err := s.subscribers.Add(r.Context(), email); err != nil {
			s.internalError(w, "subscribe", err)
			return
		}
		writeJSON(w, http.StatusCreated, response{Success: true, Message: "successfully subscribed to the daily digest"})
	case existing.IsActive:
		writeJSON(w, http.StatusConflict, response{Success: false, Error: "email already subscribed"})
	default:
		if err := s.subscribers.Reactivate(r.Context(), existing.ID); err != nil {
			s.internalError(w, "subscribe", err)
			return
		}
		writeJSON(w, http.StatusOK, response{Success: true, Message: "subscription reactivated"})
	}
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	email, ok := s.readEmail(w, r)
	if !ok {
		return
	}

	existing, err := s.subscribers.ByEmail(r.Context(), email)
	if err != nil {
		s.internalError(w, "unsubscribe", err)
		return
	}

	switch {
	case existing == nil:
		writeJSON(w, http.StatusNotFound, response{Success: false, Error: "email not found in the subscription list"})
	case !existing.IsActive:
		writeJSON(w, http.StatusOK, response{Success: true, Message: "email already unsubscribed"})
	default:
		if err := s.subscribers.Deactivate(r.Context(), existing.ID); err != nil {
			s.internalError(w, "unsubscribe", err)
			return
		}
		writeJSON(w, http.StatusOK, response{Success: true, Message: "successfully unsubscribed"})
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	active, err := s.subscribers.CountActive(ctx)
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	recent, err := s.subscribers.CountActiveSince(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	sent, err := s.logs.CountByStatus(ctx, model.StatusSent)
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	failed, err := s.logs.CountByStatus(ctx, model.StatusFailed)
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	lastBatch, err := s.logs.LastBatchTime(ctx)
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	latest, err := s.articles.Latest(ctx, 5)
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data: map[string]any{
			"total_subscribers":   active,
			"recent_subscribers":  recent,
			"total_emails_sent":   sent,
			"total_emails_failed": failed,
			"last_batch_time":     lastBatch,
			"latest_articles":     latest,
		},
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	digest, err := s.source.Fetch(r.Context())
	if err != nil {
		s.internalError(w, "news", err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data: map[string]any{
			"articles_count": len(digest.Articles),
			"articles":       digest.Articles,
			"fallback":       digest.Fallback,
		},
	})
}

// handleSendNow runs the batch synchronously, outside the schedule. The
// dispatcher's own guard keeps it from overlapping a scheduled run.
func (s *Server) handleSendNow(w http.ResponseWriter, r *http.Request) {
	summary, results, err := s.runner.Run(r.Context())
	if errors.Is(err, dispatcher.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, response{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		log.Printf("[ERROR] manual digest run: %v", err)
	}

	writeJSON(w, http.StatusOK, response{
		Success: err == nil,
		Data: map[string]any{
			"summary": summary,
			"results": results,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Success: false, Error: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "healthy"})
}

func (s *Server) readEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Error: "invalid request body"})
		return "", false
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Error: "invalid email address"})
		return "", false
	}
	return email, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	log.Printf("[ERROR] %s: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, response{Success: false, Error: "an internal error occurred"})
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[ERROR] failed to encode response: %v", err)
	}
}
