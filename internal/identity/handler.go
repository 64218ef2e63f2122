package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/aviya/internal/api"
	"github.com/ashureev/aviya/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	stateCookieName = "aviya_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthRepository is the storage the auth handler needs.
type AuthRepository interface {
	SessionRepository
	CreateLoginSession(ctx context.Context, session *domain.LoginSession) error
}

// HandlerConfig configures the auth routes.
type HandlerConfig struct {
	LoginTTL time.Duration
	// RedirectURL is where the browser lands after sign-in, success or not.
	RedirectURL string
	Secure      bool
	// OnLogout, if set, runs after a signed-in identity signs out.
	OnLogout func(identityID string)
}

// Handler serves sign-in, sign-out and the current-identity endpoint.
type Handler struct {
	providers *Registry
	linker    *Linker
	repo      AuthRepository
	cfg       HandlerConfig
}

// NewHandler creates the auth handler.
func NewHandler(providers *Registry, linker *Linker, repo AuthRepository, cfg HandlerConfig) *Handler {
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "/"
	}
	return &Handler{providers: providers, linker: linker, repo: repo, cfg: cfg}
}

// MeResponse is the body of GET /me.
type MeResponse struct {
	User *domain.PublicIdentity `json:"user"`
}

// Login redirects to the provider's consent page.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		api.Error(w, http.StatusNotFound, "unknown provider")
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("Failed to generate oauth state", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.Secure,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the authorization code flow and signs the browser in.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, err := h.providers.Get(name)
	if err != nil {
		api.Error(w, http.StatusNotFound, "unknown provider")
		return
	}
	h.clearCookie(w, stateCookieName, "/auth/")

	identity, err := h.complete(r, p)
	if err != nil {
		slog.Warn("Sign-in failed", "provider", name, "error", err)
		http.Redirect(w, r, h.cfg.RedirectURL, http.StatusFound)
		return
	}

	now := time.Now()
	ls := &domain.LoginSession{
		Token:      uuid.NewString(),
		IdentityID: identity.ID,
		ExpiresAt:  now.Add(h.cfg.LoginTTL),
		CreatedAt:  now,
	}
	if err := h.repo.CreateLoginSession(r.Context(), ls); err != nil {
		slog.Error("Failed to create login session", "identity_id", identity.ID, "error", err)
		http.Redirect(w, r, h.cfg.RedirectURL, http.StatusFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     LoginCookieName,
		Value:    ls.Token,
		Path:     "/",
		MaxAge:   int(h.cfg.LoginTTL.Seconds()),
		Expires:  ls.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.Secure,
	})
	slog.Info("Signed in", "identity_id", identity.ID, "provider", name)
	http.Redirect(w, r, h.cfg.RedirectURL, http.StatusFound)
}

func (h *Handler) complete(r *http.Request, p Provider) (*domain.Identity, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return nil, fmt.Errorf("provider returned %q", e)
	}

	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		return nil, ErrStateMismatch
	}

	code := q.Get("code")
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		return nil, err
	}
	return h.linker.Link(r.Context(), profile)
}

// Me returns the signed-in identity or null.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	var resp MeResponse
	if identity := FromContext(r.Context()); identity != nil {
		pub := identity.Public()
		resp.User = &pub
	}
	api.JSON(w, http.StatusOK, resp)
}

// Logout ends the login session. It succeeds for anonymous callers too.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := loginTokenFromContext(r.Context()); token != "" {
		if err := h.repo.DeleteLoginSession(r.Context(), token); err != nil {
			slog.Error("Failed to delete login session", "error", err)
			api.Error(w, http.StatusInternalServerError, "failed to sign out")
			return
		}
	}
	h.clearCookie(w, LoginCookieName, "/")
	if identity := FromContext(r.Context()); identity != nil && h.cfg.OnLogout != nil {
		h.cfg.OnLogout(identity.ID)
	}
	api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.Secure,
	})
}

// Routes mounts the auth endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth/{provider}", h.Login)
	r.Get("/auth/{provider}/callback", h.Callback)
	r.Get("/me", h.Me)
	r.Post("/logout", h.Logout)
}
