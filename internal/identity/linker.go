package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/aviya/internal/domain"
	"github.com/google/uuid"
)

// LinkRepository is the storage the linker needs.
type LinkRepository interface {
	FindIdentityByLink(ctx context.Context, provider, subject string) (*domain.Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)
	CreateIdentity(ctx context.Context, identity *domain.Identity) error
	AddLink(ctx context.Context, identityID, provider, subject string) error
	SetRole(ctx context.Context, identityID string, role domain.Role) error
}

// Linker maps provider profiles onto persisted identities. The same person
// signing in with Google and Microsoft under one email gets one identity.
type Linker struct {
	repo         LinkRepository
	creatorEmail string
	now          func() time.Time
}

// NewLinker creates a Linker. An empty creatorEmail promotes nobody.
func NewLinker(repo LinkRepository, creatorEmail string) *Linker {
	return &Linker{repo: repo, creatorEmail: creatorEmail, now: time.Now}
}

// Link finds or creates the identity for a profile:
// by provider subject, then by email, then a new identity. A matched identity
// missing a link for this provider gets one.
func (l *Linker) Link(ctx context.Context, p Profile) (*domain.Identity, error) {
	identity, err := l.repo.FindIdentityByLink(ctx, p.Provider, p.Subject)
	if err != nil {
		return nil, fmt.Errorf("find by %s link: %w", p.Provider, err)
	}

	if identity == nil && p.Email != "" {
		identity, err = l.repo.FindIdentityByEmail(ctx, p.Email)
		if err != nil {
			return nil, fmt.Errorf("find by email: %w", err)
		}
	}

	if identity == nil {
		identity, err = l.create(ctx, p)
		if err != nil {
			return nil, err
		}
	} else if !identity.HasLink(p.Provider) {
		if err := l.repo.AddLink(ctx, identity.ID, p.Provider, p.Subject); err != nil {
			return nil, fmt.Errorf("backfill %s link: %w", p.Provider, err)
		}
		if identity.Links == nil {
			identity.Links = make(map[string]string)
		}
		identity.Links[p.Provider] = p.Subject
		slog.Info("Linked provider to existing identity",
			"identity_id", identity.ID,
			"provider", p.Provider)
	}

	if err := l.Promote(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Promote gives the creator role to the identity whose email matches the
// configured creator email. It is idempotent and never demotes.
func (l *Linker) Promote(ctx context.Context, identity *domain.Identity) error {
	if identity == nil || identity.IsCreator() || !identity.MatchesEmail(l.creatorEmail) {
		return nil
	}
	if err := l.repo.SetRole(ctx, identity.ID, domain.RoleCreator); err != nil {
		return fmt.Errorf("promote creator: %w", err)
	}
	identity.Role = domain.RoleCreator
	slog.Info("Identity promoted to creator", "identity_id", identity.ID)
	return nil
}

func (l *Linker) create(ctx context.Context, p Profile) (*domain.Identity, error) {
	name := p.DisplayName
	if name == "" {
		name = p.Email
	}
	now := l.now()
	identity := &domain.Identity{
		ID:          uuid.NewString(),
		Email:       p.Email,
		DisplayName: name,
		AvatarURL:   p.AvatarURL,
		Role:        domain.RoleUser,
		Links:       map[string]string{p.Provider: p.Subject},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.repo.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	slog.Info("Identity created", "identity_id", identity.ID, "provider", p.Provider)
	return identity, nil
}
