package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/domain/postgres"
	"github.com/serbia-gov/platform/internal/shared/auth"
	"github.com/serbia-gov/platform/internal/shared/config"
	"github.com/serbia-gov/platform/internal/shared/types"
)

var testAuthConf = config.AuthConfig{JWTSecret: "test-secret"}

func opsToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{Roles: []string{"ops"}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testAuthConf.JWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

type fakeStore struct {
	subs       []*domain.Subscriber
	namespaces []*domain.Namespace
	messages   []*domain.MessageLogEntry
}

func (f *fakeStore) ListAllSubscribers(context.Context) ([]*domain.Subscriber, error) {
	return f.subs, nil
}

func (f *fakeStore) ListNamespaces(context.Context) ([]*domain.Namespace, error) {
	return f.namespaces, nil
}

func (f *fakeStore) ListMessageLog(context.Context, postgres.MessageLogFilter) ([]*domain.MessageLogEntry, error) {
	return f.messages, nil
}

func TestListSubscribersReturnsData(t *testing.T) {
	store := &fakeStore{subs: []*domain.Subscriber{{ID: types.NewID(), Name: "ris"}}}
	h := NewHandler(store, nil, testAuthConf)

	req := httptest.NewRequest(http.MethodGet, "/subscribers/", nil)
	req.Header.Set("Authorization", "Bearer "+opsToken(t))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListSubscribersRejectsMissingToken(t *testing.T) {
	store := &fakeStore{subs: []*domain.Subscriber{{ID: types.NewID(), Name: "ris"}}}
	h := NewHandler(store, nil, testAuthConf)

	req := httptest.NewRequest(http.MethodGet, "/subscribers/", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestReadyWithoutDatabaseConfigured(t *testing.T) {
	h := NewHandler(&fakeStore{}, nil, testAuthConf)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthAlwaysOK(t *testing.T) {
	h := NewHandler(&fakeStore{}, nil, testAuthConf)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
