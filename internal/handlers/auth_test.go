package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/courtline/internal/model"
	"github.com/md-rashed-zaman/courtline/internal/sessions"
	"github.com/md-rashed-zaman/courtline/internal/storage"
)

type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[string]model.User
	byPhone map[string]string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: map[string]model.User{}, byPhone: map[string]string{}}
}

func (f *fakeUserStore) Create(_ context.Context, user model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPhone[user.PhoneNumber]; ok {
		return storage.ErrConflict
	}
	f.byID[user.ID] = user
	f.byPhone[user.PhoneNumber] = user.ID
	return nil
}

func (f *fakeUserStore) GetByPhone(_ context.Context, phoneNumber string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPhone[phoneNumber]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return user, nil
}

// fakeRefreshStore mirrors the repository's conditional revoke: only
// the first Revoke for a token reports true.
type fakeRefreshStore struct {
	mu     sync.Mutex
	byHash map[string]string
	tokens map[string]*sessions.RefreshToken
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{byHash: map[string]string{}, tokens: map[string]*sessions.RefreshToken{}}
}

func (f *fakeRefreshStore) Create(_ context.Context, userID string, rawToken string, expiresAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	hash := sessions.HashToken(rawToken)
	f.byHash[hash] = id
	f.tokens[id] = &sessions.RefreshToken{ID: id, UserID: userID, Hash: hash, ExpiresAt: expiresAt}
	return id, nil
}

func (f *fakeRefreshStore) GetByHash(_ context.Context, hash string) (sessions.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return sessions.RefreshToken{}, sessions.ErrTokenNotFound
	}
	return *f.tokens[id], nil
}

func (f *fakeRefreshStore) Revoke(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[id]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	token.RevokedAt = &now
	return true, nil
}

func newTestAuthHandler() (*AuthHandler, *fakeUserStore, *fakeRefreshStore) {
	users := newFakeUserStore()
	refresh := newFakeRefreshStore()
	return NewAuthHandler(users, refresh, testSecret, time.Hour, 24*time.Hour), users, refresh
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func registerUser(t *testing.T, h *AuthHandler) tokenResponse {
	t.Helper()
	rec := postJSON(t, h.Register, "/auth/register",
		`{"phoneNumber":"+385911111111","password":"hunter22","firstName":"Ana","lastName":"Horvat"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %q", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("missing tokens: %+v", resp)
	}
	return resp
}

func TestRegisterDuplicatePhone(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	registerUser(t, h)

	rec := postJSON(t, h.Register, "/auth/register",
		`{"phoneNumber":"+385911111111","password":"other","firstName":"Ivo","lastName":"Kovac"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	registerUser(t, h)

	rec := postJSON(t, h.Login, "/auth/login",
		`{"phoneNumber":"+385911111111","password":"hunter22"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, h.Login, "/auth/login",
		`{"phoneNumber":"+385911111111","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", rec.Code)
	}

	rec = postJSON(t, h.Login, "/auth/login",
		`{"phoneNumber":"+385900000000","password":"hunter22"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown phone status = %d, want 401", rec.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	initial := registerUser(t, h)

	rec := postJSON(t, h.Refresh, "/auth/refresh",
		`{"refreshToken":"`+initial.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %q", rec.Code, rec.Body.String())
	}
	var rotated tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if rotated.RefreshToken == initial.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	initial := registerUser(t, h)
	body := `{"refreshToken":"` + initial.RefreshToken + `"}`

	if rec := postJSON(t, h.Refresh, "/auth/refresh", body); rec.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d", rec.Code)
	}
	// Replaying the same token must fail: rotation revokes it
	// conditionally, so a second presentation loses.
	if rec := postJSON(t, h.Refresh, "/auth/refresh", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", rec.Code)
	}
}

func TestRefreshRejectsExpired(t *testing.T) {
	h, users, refresh := newTestAuthHandler()
	user := model.User{ID: uuid.NewString(), PhoneNumber: "+385911111111"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	raw := "stale-token"
	if _, err := refresh.Create(context.Background(), user.ID, raw, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	rec := postJSON(t, h.Refresh, "/auth/refresh", `{"refreshToken":"`+raw+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	initial := registerUser(t, h)
	body := `{"refreshToken":"` + initial.RefreshToken + `"}`

	for i := 0; i < 2; i++ {
		rec := postJSON(t, h.Logout, "/auth/logout", body)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("logout attempt %d status = %d, want 204", i, rec.Code)
		}
	}

	// A logged-out token cannot refresh.
	if rec := postJSON(t, h.Refresh, "/auth/refresh", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want 401", rec.Code)
	}
}

func TestMe(t *testing.T) {
	h, _, _ := newTestAuthHandler()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", bearerToken(t, "u1", "+385911111111"))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got meResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.UserID != "u1" || got.PhoneNumber != "+385911111111" {
		t.Fatalf("got %+v", got)
	}

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}
}
