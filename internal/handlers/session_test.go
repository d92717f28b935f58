package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloce-hq/duckhub/internal/auth"
	"github.com/veloce-hq/duckhub/internal/models"
)

type fakeUsers struct {
	users   map[uuid.UUID]*models.User
	created int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUsers) CreateGuest(_ context.Context) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Username: auth.GenerateUsername(), IsGuest: true}
	f.users[u.ID] = u
	f.created++
	return u, nil
}

func (f *fakeUsers) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (f *fakeUsers) TouchSeen(_ context.Context, _ uuid.UUID) error { return nil }

func TestEnsureGuestUserProvisions(t *testing.T) {
	auth.Init()
	users := newFakeUsers()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)

	user, err := EnsureGuestUser(w, r, users)
	require.NoError(t, err)
	assert.True(t, user.IsGuest)
	assert.NotEmpty(t, user.Username)
	assert.Equal(t, 1, users.created)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth_token", cookies[0].Name)

	sub, err := auth.AuthenticateJWT(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), sub)
}

func TestEnsureGuestUserResolvesExisting(t *testing.T) {
	auth.Init()
	users := newFakeUsers()
	existing, err := users.CreateGuest(context.Background())
	require.NoError(t, err)
	token, err := auth.CreateJWT(existing.ID.String())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})

	user, err := EnsureGuestUser(w, r, users)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, 1, users.created, "no second guest is provisioned")
	assert.Empty(t, w.Result().Cookies(), "existing sessions keep their cookie")
}

func TestEnsureGuestUserReplacesDeadToken(t *testing.T) {
	auth.Init()
	users := newFakeUsers()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: "auth_token", Value: "not-a-token"})

	user, err := EnsureGuestUser(w, r, users)
	require.NoError(t, err)
	assert.True(t, user.IsGuest)
	require.Len(t, w.Result().Cookies(), 1)
}

func TestEnsureGuestUserRejectsDeactivated(t *testing.T) {
	auth.Init()
	users := newFakeUsers()
	existing, err := users.CreateGuest(context.Background())
	require.NoError(t, err)
	now := time.Now()
	existing.DeactivatedAt = &now
	token, err := auth.CreateJWT(existing.ID.String())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})

	user, err := EnsureGuestUser(w, r, users)
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, user.ID, "a deactivated account yields a fresh guest")
}
