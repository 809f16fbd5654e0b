package user

import (
	"context"

	"go.uber.org/zap"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/repository"
)

// UseCase exposes the directory to admin callers, mainly so the assign UI
// can enumerate assignable users.
type UseCase struct {
	directory repository.UserDirectory
	logger    *zap.Logger
}

func New(directory repository.UserDirectory, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		directory: directory,
		logger:    logger,
	}
}

// ListUsers returns every directory user. Admin only.
func (uc *UseCase) ListUsers(ctx context.Context, actor *domain.Identity) ([]domain.DirectoryUser, error) {
	if err := domain.RequireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := uc.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("directory listed", zap.Int("count", len(users)))
	return users, nil
}
