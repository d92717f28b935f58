package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/veloce-hq/duckhub/internal/auth"
	"github.com/veloce-hq/duckhub/internal/models"
)

// UserSource is the slice of the user store the session layer needs.
type UserSource interface {
	CreateGuest(ctx context.Context) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	TouchSeen(ctx context.Context, id uuid.UUID) error
}

// EnsureGuestUser resolves the request's identity, auto-provisioning a guest
// account when no valid session token is present. The fresh token is set on
// the response, so it must run before any WebSocket upgrade writes headers.
func EnsureGuestUser(w http.ResponseWriter, r *http.Request, users UserSource) (*models.User, error) {
	if cookie, err := r.Cookie("auth_token"); err == nil {
		if user, err := userFromToken(r.Context(), cookie.Value, users); err == nil {
			return user, nil
		}
	}
	return provisionGuest(r.Context(), w, users)
}

func userFromToken(ctx context.Context, token string, users UserSource) (*models.User, error) {
	sub, err := auth.AuthenticateJWT(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in token: %w", err)
	}
	user, err := users.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, fmt.Errorf("user %s is deactivated", id)
	}
	return user, nil
}

func provisionGuest(ctx context.Context, w http.ResponseWriter, users UserSource) (*models.User, error) {
	user, err := users.CreateGuest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create guest user: %w", err)
	}
	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create guest JWT: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return user, nil
}
