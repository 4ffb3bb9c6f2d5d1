package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	pfirestore "github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/firestore"
)

const userCollection = "users"

// UserRepository resolves principal profiles for scoping checks.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection)
	return &UserRepository{base: base}, nil
}

// FindByID loads the user profile by ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:        doc.ID,
		Name:      strings.TrimSpace(doc.Data.Name),
		Email:     strings.TrimSpace(doc.Data.Email),
		Role:      domain.Role(strings.TrimSpace(doc.Data.Role)),
		CreatedAt: doc.Data.CreatedAt,
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	if user.Role == "" {
		user.Role = domain.RoleBuyer
	}
	return user, nil
}

type userDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
}
