package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	maxHandleLength   = 32
	maxHandleAttempts = 5
)

// Resolver maps a verified token to a local user row, creating the row
// the first time an external id shows up.
//
// Why singleflight?
//   - A freshly signed-in browser fires several requests at once. Without
//     it they would all miss the lookup and race to insert the same user.
//     The unique index on external_id would save correctness, but every
//     loser would pay for a failed insert and a re-read.
//   - Across replicas the unique index is still the final word, so a
//     conflicting insert falls back to reading the winner's row.
type Resolver struct {
	store  repository.Store
	admins map[string]bool
	group  singleflight.Group
	logger *zap.Logger
}

// NewResolver builds a Resolver. platformAdmins are external ids that
// become super-admins when their user row is created.
func NewResolver(store repository.Store, platformAdmins []string, logger *zap.Logger) *Resolver {
	admins := make(map[string]bool, len(platformAdmins))
	for _, id := range platformAdmins {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = true
		}
	}
	return &Resolver{store: store, admins: admins, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*models.User, error) {
	users := r.store.Repos().Users
	u, err := users.GetByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u != nil {
		return u, nil
	}

	// Callers share the flight, so one caller going away must not fail
	// the others.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(claims.Subject, func() (any, error) {
		return r.create(flightCtx, claims)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

func (r *Resolver) create(ctx context.Context, claims *Claims) (*models.User, error) {
	users := r.store.Repos().Users
	base := DeriveHandle(claims.Name, claims.Email)

	user := models.User{
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: strings.TrimSpace(claims.Name),
		AvatarURL:   claims.Picture,
	}
	if user.DisplayName == "" {
		user.DisplayName = base
	}
	if r.admins[claims.Subject] {
		user.GlobalRole = models.GlobalRoleSuperAdmin
	}

	for attempt := 0; attempt < maxHandleAttempts; attempt++ {
		user.Handle = base
		if attempt > 0 {
			user.Handle = withSuffix(base)
		}
		created, err := users.Create(ctx, user)
		if err == nil {
			r.logger.Info("user created",
				zap.String("user_id", created.ID.String()),
				zap.String("handle", created.Handle),
				zap.Bool("superadmin", created.IsSuperAdmin()),
			)
			return created, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create user: %w", err)
		}

		// Either another replica created this user first, or the handle
		// is taken. Tell the two apart by reading the external id.
		existing, err := users.GetByExternalID(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("no free handle for %q after %d attempts", base, maxHandleAttempts)
}

// DeriveHandle builds a mention handle from a display name, falling back
// to the local part of the email. Only [a-z0-9_-] survive, so every
// handle is mentionable.
func DeriveHandle(name, email string) string {
	for _, src := range []string{name, localPart(email)} {
		if h := sanitizeHandle(src); h != "" {
			return h
		}
	}
	return "user"
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

func sanitizeHandle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('-')
		}
		if b.Len() >= maxHandleLength {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

func withSuffix(base string) string {
	suffix := uuid.NewString()[:4]
	if len(base) > maxHandleLength-5 {
		base = base[:maxHandleLength-5]
	}
	return base + "-" + suffix
}
