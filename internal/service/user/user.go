package user

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
	"github.com/nkiryanov/escrow/internal/service/auth"
)

// Compared against when the user is unknown, so missing users take as long as wrong passwords
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoO5s3Z3m1u0G8S8lJ1G9yPpN8Z6G1cP2e"

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage

	// Usernames registered with admin role
	admins []string
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, admins ...string) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		admins:  admins,
	}
}

// CreateUser creates user together with an empty account
func (s *UserService) CreateUser(ctx context.Context, username string, password string) (models.User, error) {
	var user models.User
	if password == "" {
		return user, apperrors.Validationf("password must not be empty")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	role := models.RoleUser
	if slices.Contains(s.admins, username) {
		role = models.RoleAdmin
	}

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		user, err = tx.User().CreateUser(ctx, username, hash, role)
		if err != nil {
			return err
		}

		_, err = tx.Account().CreateAccount(ctx, user.ID)
		return err
	})
	if err != nil {
		return models.User{}, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Login returns apperrors.ErrUserNotFound both for unknown user and wrong password
func (s *UserService) Login(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(dummyHash, password)
		return models.User{}, apperrors.ErrUserNotFound
	case err != nil:
		return models.User{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) GetBalance(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccount(ctx, userID)
}
