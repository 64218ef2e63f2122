package agent

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/aviya/internal/api"
	"github.com/ashureev/aviya/internal/identity"
	"github.com/ashureev/aviya/internal/metrics"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize matches the JSON limit of the web client (10MB).
const defaultMaxRequestBodySize = 10 << 20

// Handler serves the chat endpoints.
type Handler struct {
	agent       *Service
	rateLimiter *RateLimiter
	maxBodySize int64
}

// HandlerConfig configures the chat endpoints.
type HandlerConfig struct {
	// RateLimitRequests per RateLimitWindow per client. Zero disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodySize       int64
}

// RateLimiter implements a per-client sliding window limiter. Signed-in
// callers are keyed by identity, anonymous ones by IP, so rotating
// conversation IDs does not bypass it.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// startEviction runs a background goroutine that periodically removes expired
// keys from the requests map, preventing unbounded memory growth.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.evict()
			case <-r.done:
				return
			}
		}
	}()
}

func (r *RateLimiter) evict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-r.window)
	for key, times := range r.requests {
		var fresh []time.Time
		for _, t := range times {
			if t.After(cutoff) {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) == 0 {
			delete(r.requests, key)
		} else {
			r.requests[key] = fresh
		}
	}
}

// Close stops the eviction goroutine.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.done) })
}

// NewHandler creates a chat handler.
func NewHandler(agent *Service, cfg HandlerConfig) *Handler {
	h := &Handler{
		agent:       agent,
		maxBodySize: cfg.MaxBodySize,
	}
	if h.maxBodySize <= 0 {
		h.maxBodySize = defaultMaxRequestBodySize
	}
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
		h.rateLimiter = NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	return h
}

// RegisterRoutes mounts the chat endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Post("/upload", h.HandleUpload)
	r.Post("/audio", h.HandleAudio)
}

// Close releases background resources.
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Close()
	}
}

// HandleChat handles POST /chat. A missing, empty or whitespace-only message
// is rejected with 400 instead of being sent to the model as an empty turn.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	reqID := chiMiddleware.GetReqID(r.Context())
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Chat handler panicked", "panic", rec, "request_id", reqID)
			api.Error(w, http.StatusInternalServerError, ReplyTrouble)
		}
	}()

	if h.rateLimiter != nil && !h.rateLimiter.Allow(identity.ClientKey(r)) {
		metrics.RateLimited.Inc()
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.SessionID = identity.ResolveSessionID(r.Context(), req.SessionID)
	req.Identity = identity.FromContext(r.Context())

	slog.Info("Chat request",
		"session_id", req.SessionID,
		"signed_in", req.Identity != nil,
		"message_length", len(req.Message),
		"request_id", reqID,
	)

	resp, err := h.agent.Chat(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Chat failed", "error", err, "session_id", req.SessionID, "request_id", reqID)
		api.Error(w, http.StatusInternalServerError, ReplyTrouble)
		return
	}

	api.JSON(w, http.StatusOK, resp)
}

// HandleUpload handles POST /upload. Files are acknowledged, not stored.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	api.JSON(w, http.StatusOK, AckResponse{OK: true, Reply: UploadReply(req.Name)})
}

// HandleAudio handles POST /audio. Voice messages are acknowledged, not stored.
func (h *Handler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, http.MaxBytesReader(w, r.Body, h.maxBodySize))
	api.JSON(w, http.StatusOK, AckResponse{OK: true, Reply: ReplyAudio})
}
