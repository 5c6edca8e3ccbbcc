package users

import "context"

// Service exposes user lookups to handlers and the authentication guard.
type Service struct {
	repo *Repository
}

// NewService constructs a Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the user by id, including soft-deleted accounts.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByEmail returns the active user with the email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// List returns active users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}
