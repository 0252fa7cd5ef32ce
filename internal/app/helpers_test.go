package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"pennpad/api/internal/config"
	"pennpad/api/internal/identity"
	"pennpad/api/internal/session"
	"pennpad/api/internal/store"
)

const testIdentitySecret = "test-identity-secret"

type testEnv struct {
	store    *store.MemoryStore
	sessions *session.RedisStore
	service  *Service
	server   *HTTPServer
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := store.NewMemoryStore()
	sessions := session.NewRedisStoreWithClient(client)
	cfg := config.Config{
		SessionSecret: "test-session-secret",
		SessionTTL:    24 * time.Hour,
		IDTokenSecret: testIdentitySecret,
	}
	svc := New(cfg, st, sessions, identity.NewVerifier(testIdentitySecret), Deps{})
	return &testEnv{
		store:    st,
		sessions: sessions,
		service:  svc,
		server:   NewHTTPServer(svc, "*", false),
		redis:    mr,
	}
}

// issueIDToken mints a provider-style ID token signed with the test secret.
func issueIDToken(t *testing.T, sub, email, name string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            sub,
		"email":          email,
		"email_verified": true,
		"name":           name,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testIdentitySecret))
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

// login exchanges an ID token for the session cookie via the real endpoint.
func (env *testEnv) login(t *testing.T, sub, email, name string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"idToken": issueIDToken(t, sub, email, name)})
	req := httptest.NewRequest(http.MethodPost, "/api/sessionLogin", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: status %d body=%s", rr.Code, rr.Body.String())
	}
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == sessionCookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatalf("login response set no session cookie")
	return nil
}

// do runs a request through the full handler chain.
func (env *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func assertErrorBody(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	msg, ok := payload["error"].(string)
	if !ok || msg == "" {
		t.Fatalf("expected flat error body with non-empty message, got %s", rr.Body.String())
	}
	if len(payload) != 1 {
		t.Fatalf("expected error body with a single error field, got %s", rr.Body.String())
	}
}

// fakeBilling records calls and returns canned values.
type fakeBilling struct {
	checkoutFn func(ctx context.Context, email string) (string, error)
	portalFn   func(ctx context.Context, email string) (string, error)
}

func (f *fakeBilling) CreateCheckoutSession(ctx context.Context, email string) (string, error) {
	if f.checkoutFn != nil {
		return f.checkoutFn(ctx, email)
	}
	return "cs_test_123", nil
}

func (f *fakeBilling) CreateBillingPortalSession(ctx context.Context, email string) (string, error) {
	if f.portalFn != nil {
		return f.portalFn(ctx, email)
	}
	return "https://billing.example.com/portal", nil
}

// fakeCompletion echoes a transformed marker so tests can assert plumbing.
type fakeCompletion struct {
	expandFn  func(ctx context.Context, text, amount, option string) (string, error)
	shortenFn func(ctx context.Context, text, option string) (string, error)
}

func (f *fakeCompletion) Expand(ctx context.Context, text, amount, option string) (string, error) {
	if f.expandFn != nil {
		return f.expandFn(ctx, text, amount, option)
	}
	return "expanded: " + text, nil
}

func (f *fakeCompletion) Shorten(ctx context.Context, text, option string) (string, error) {
	if f.shortenFn != nil {
		return f.shortenFn(ctx, text, option)
	}
	return "shortened: " + text, nil
}

// failingStore wraps the in-memory store and forces selected operations to
// fail, for exercising the 500 mapping.
type failingStore struct {
	*store.MemoryStore
	listDocumentsErr  error
	insertChapterErr  error
	insertDocumentErr error
}

func (f *failingStore) ListDocuments(ctx context.Context, userID string) ([]store.Document, error) {
	if f.listDocumentsErr != nil {
		return nil, f.listDocumentsErr
	}
	return f.MemoryStore.ListDocuments(ctx, userID)
}

func (f *failingStore) InsertDocument(ctx context.Context, item store.Document) error {
	if f.insertDocumentErr != nil {
		return f.insertDocumentErr
	}
	return f.MemoryStore.InsertDocument(ctx, item)
}

func (f *failingStore) InsertChapter(ctx context.Context, item store.Chapter) error {
	if f.insertChapterErr != nil {
		return f.insertChapterErr
	}
	return f.MemoryStore.InsertChapter(ctx, item)
}
