package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/auth"
	"github.com/veloce-hq/duckhub/internal/models"
)

// AccountStore is the user-store surface the HTTP account endpoints need.
type AccountStore interface {
	UserSource
	ClaimGuest(ctx context.Context, id uuid.UUID, email, password, username string) error
	UserByUsername(ctx context.Context, username string) (*models.User, error)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// CreateUserHandler registers a full account: a guest row is provisioned and
// immediately claimed with the supplied credentials.
func CreateUserHandler(logger *logrus.Logger, store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, "username and password are required", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		user, err := store.CreateGuest(ctx)
		if err != nil {
			logger.Errorf("create user: provisioning row: %v", err)
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}
		if err := store.ClaimGuest(ctx, user.ID, req.Email, req.Password, req.Username); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "username or email already exists", http.StatusConflict)
				return
			}
			logger.Errorf("create user: claiming row: %v", err)
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		user, err = store.UserByID(ctx, user.ID)
		if err != nil {
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}
		setSessionCookie(w, logger, user.ID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(user)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler verifies a username/password pair and issues a session token,
// both in the JSON response and as an auth_token cookie.
func LoginHandler(logger *logrus.Logger, store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		user, err := store.UserByUsername(r.Context(), req.Username)
		if err != nil || !user.Active() || user.IsGuest {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}
		match, err := auth.ComparePasswordAndHash(req.Password, user.Password)
		if err != nil || !match {
			logger.Debugf("login: password mismatch for %q", req.Username)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		token, err := auth.CreateJWT(user.ID.String())
		if err != nil {
			logger.Errorf("login: signing token: %v", err)
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TokenExpireSec,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loginResponse{Token: token})
	}
}

// ClaimGuestHandler upgrades the authenticated guest account to a full one.
// The caller proves ownership through their session cookie.
func ClaimGuestHandler(logger *logrus.Logger, store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("auth_token")
		if err != nil {
			http.Error(w, "missing token", http.StatusForbidden)
			return
		}
		user, err := userFromToken(r.Context(), cookie.Value, store)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		if !user.IsGuest {
			http.Error(w, "user is not a guest", http.StatusBadRequest)
			return
		}

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid claim payload", http.StatusBadRequest)
			return
		}
		if req.Password == "" {
			http.Error(w, "password is required", http.StatusBadRequest)
			return
		}
		username := req.Username
		if username == "" {
			username = user.Username
		}

		if err := store.ClaimGuest(r.Context(), user.ID, req.Email, req.Password, username); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "username or email already exists", http.StatusConflict)
				return
			}
			logger.Errorf("claim guest %s: %v", user.ID, err)
			http.Error(w, "failed to claim guest user", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func setSessionCookie(w http.ResponseWriter, logger *logrus.Logger, userID uuid.UUID) {
	token, err := auth.CreateJWT(userID.String())
	if err != nil {
		logger.Warnf("signing session token for %s: %v", userID, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TokenExpireSec,
	})
}
