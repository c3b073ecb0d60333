package services

import (
	"github.com/hbl306/phongtro57-chat/internal/auth"
	"github.com/hbl306/phongtro57-chat/internal/models"
	"github.com/hbl306/phongtro57-chat/internal/repositories"
	"github.com/hbl306/phongtro57-chat/pkg/apperrors"
)

// IdentityService resolves a bearer credential into a live identity. Role and
// display attributes come from the user row, not from token claims, so an
// account-type switch is picked up on the next connection.
type IdentityService struct {
	users     *repositories.UserRepository
	jwtSecret string
}

func NewIdentityService(users *repositories.UserRepository, jwtSecret string) *IdentityService {
	return &IdentityService{
		users:     users,
		jwtSecret: jwtSecret,
	}
}

// Resolve validates the token and loads the current user record.
func (s *IdentityService) Resolve(token string) (*models.Identity, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid or expired token")
	}

	user, err := s.users.FindByID(claims.UserID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewUnauthorizedError("unknown user")
		}
		return nil, apperrors.InternalError(err)
	}
	if user.Status != models.UserStatusActive {
		return nil, apperrors.NewUnauthorizedError("account is not active")
	}

	return &models.Identity{
		UserID:      user.ID,
		Role:        user.Role,
		DisplayName: user.Name,
		Phone:       user.Phone,
	}, nil
}
