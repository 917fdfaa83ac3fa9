package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memoireai/internal/util"
	"memoireai/pkg/auth"
	"memoireai/pkg/domain"
)

// Register creates an account. Email, password and full name are all
// required; a duplicate email is rejected.
func (a *App) Register(ctx context.Context, email, password, name string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return domain.User{}, fmt.Errorf("email, password and name required")
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	a.logAction(ctx, user.ID, "REGISTER", fmt.Sprintf("Inscription de %s", email))
	return user, nil
}

// Login verifies credentials and returns the account. Unknown email and
// wrong password both come back as ErrBadCredentials.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.User{}, ErrBadCredentials
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrBadCredentials
	}
	return user, nil
}

// GetUser returns the account profile.
func (a *App) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// UpdateEmail changes the account email. Only the email is editable here.
func (a *App) UpdateEmail(ctx context.Context, userID, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, fmt.Errorf("email required")
	}
	current, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if email != current.Email {
		taken, err := a.store.HasUserEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return domain.User{}, ErrEmailTaken
		}
	}
	if err := a.store.SetUserEmail(userID, email); err != nil {
		return domain.User{}, fmt.Errorf("update email: %w", err)
	}
	current.Email = email
	return current, nil
}

// SetTheme stores the display theme preference.
func (a *App) SetTheme(ctx context.Context, userID string, theme string) error {
	t := domain.Theme(theme)
	if t != domain.ThemeLight && t != domain.ThemeDark {
		return ErrInvalidTheme
	}
	if err := a.store.SetUserTheme(userID, t); err != nil {
		return fmt.Errorf("update theme: %w", err)
	}
	return nil
}
