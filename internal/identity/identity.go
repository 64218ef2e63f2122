// Package identity resolves who is talking: the signed-in account behind a
// login cookie, and the conversation (tab) the message belongs to.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/aviya/internal/domain"
	"github.com/ashureev/aviya/internal/metrics"
)

const (
	LoginCookieName       = "aviya_session"
	SessionHeaderName     = "X-Session-ID"
	DefaultSessionIDValue = "default"
)

type contextKey int

const (
	identityKey contextKey = iota
	loginTokenKey
	sessionIDKey
)

var (
	loginTokenPattern = regexp.MustCompile(`^[a-f0-9-]{36}$`)
	sessionIDPattern  = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// SessionRepository is the storage the middleware needs.
type SessionRepository interface {
	GetLoginSession(ctx context.Context, token string) (*domain.LoginSession, error)
	DeleteLoginSession(ctx context.Context, token string) error
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)
}

// FromContext returns the signed-in identity, or nil for anonymous requests.
func FromContext(ctx context.Context) *domain.Identity {
	if v, ok := ctx.Value(identityKey).(*domain.Identity); ok {
		return v
	}
	return nil
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func loginTokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(loginTokenKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the conversation ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// SanitizeSessionID returns id if it is a well-formed conversation ID and
// the default ID otherwise.
func SanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// ResolveSessionID picks the conversation ID for a request: an explicit ID
// from the body wins over the one the middleware took from headers.
func ResolveSessionID(ctx context.Context, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return SanitizeSessionID(explicit)
	}
	return SessionIDFromContext(ctx)
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return SanitizeSessionID(sid)
}

func generateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func resolveIdentity(ctx context.Context, repo SessionRepository, token string) (*domain.Identity, error) {
	ls, err := repo.GetLoginSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if ls == nil {
		return nil, nil
	}
	if ls.Expired(time.Now()) {
		if err := repo.DeleteLoginSession(ctx, token); err != nil {
			slog.Warn("Failed to delete expired login session", "error", err)
		}
		return nil, nil
	}
	return repo.GetIdentity(ctx, ls.IdentityID)
}

// Middleware attaches the signed-in identity (if any) and the conversation ID
// to the request context. Unknown or expired login cookies are treated as
// anonymous, and so is a cookie that cannot be resolved because the store is
// unavailable.
func Middleware(repo SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), sessionIDKey, sessionIDFromRequest(r))

			if c, err := r.Cookie(LoginCookieName); err == nil && loginTokenPattern.MatchString(c.Value) {
				identity, err := resolveIdentity(ctx, repo, c.Value)
				if err != nil {
					metrics.IdentityErrors.WithLabelValues("resolve").Inc()
					slog.Warn("Failed to resolve login session, continuing anonymously", "error", err)
				} else if identity != nil {
					ctx = WithIdentity(ctx, identity)
					ctx = context.WithValue(ctx, loginTokenKey, c.Value)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientKey identifies the caller for throttling: the identity when signed in,
// the remote IP otherwise.
func ClientKey(r *http.Request) string {
	if identity := FromContext(r.Context()); identity != nil {
		return "id:" + identity.ID
	}
	return "ip:" + IPFromRequest(r)
}
