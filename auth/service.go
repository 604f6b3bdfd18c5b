package auth

import (
	"context"
	"fmt"
	"haters/domain"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 64
	maxGuestNameLen   = 20
	guestIdPrefix     = "guest-"
)

var usernameFormat = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

type service struct {
	userRepo       UserRepo
	passwordHasher PasswordHasher
	tokenManager   TokenManager
	now            func() time.Time
}

func NewService(userRepo UserRepo, passwordHasher PasswordHasher, tokenManager TokenManager) *service {
	return &service{userRepo, passwordHasher, tokenManager, time.Now}
}

func (as *service) Signup(ctx context.Context, username, password string) (string, error) {
	if !usernameFormat.MatchString(username) {
		return "", ErrInvalidUsernameFormat
	}

	length := utf8.RuneCountInString(password)
	if length < minPasswordLength {
		return "", ErrWeakPassword
	}
	if length > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	passwordHash, err := as.passwordHasher.Hash(password)
	if err != nil {
		return "", err
	}

	id, err := as.userRepo.CreateUser(ctx, username, passwordHash)
	if err != nil {
		return "", err
	}

	return as.GenerateToken(domain.Identity{Id: id, Name: username})
}

func (as *service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := as.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	ok, err := as.passwordHasher.Compare(user.PasswordHash, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrIncorrectPassword
	}

	return as.GenerateToken(domain.Identity{Id: user.Id, Name: user.Username})
}

// Guest issues a token for a player without an account. The name is only
// trimmed; collisions inside a room are settled by the room.
func (as *service) Guest(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxGuestNameLen || strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", ErrInvalidGuestName
	}

	return as.GenerateToken(domain.Identity{
		Id:      guestIdPrefix + uuid.NewString(),
		Name:    name,
		IsGuest: true,
	})
}

func (as *service) VerifyToken(token string) (domain.Identity, error) {
	return as.tokenManager.Verify(token)
}

func (as *service) GenerateToken(identity domain.Identity) (string, error) {
	return as.tokenManager.Generate(identity, as.now())
}

// VerifyIdentity checks a token presented over the game socket. Registered
// users are looked up so deleted accounts cannot join and renames show up.
func (as *service) VerifyIdentity(ctx context.Context, token string) (domain.Identity, error) {
	identity, err := as.tokenManager.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}
	if identity.IsGuest {
		return identity, nil
	}

	user, err := as.userRepo.GetUserById(ctx, identity.Id)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("verify identity: %w", err)
	}
	return domain.Identity{Id: user.Id, Name: user.Username}, nil
}

func (as *service) Profile(ctx context.Context, id string) (domain.User, error) {
	if strings.HasPrefix(id, guestIdPrefix) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return as.userRepo.GetUserById(ctx, id)
}
