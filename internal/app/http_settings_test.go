package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"pennpad/api/internal/store"
)

func TestSpellingSettingsDefaultBeforeFirstWrite(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodGet, "/api/settings/spelling", nil, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)

	dict, ok := payload["personalDictionary"].([]any)
	if !ok || len(dict) != 0 {
		t.Errorf("expected empty personalDictionary array, got %v", payload["personalDictionary"])
	}
	m, ok := payload["autocorrectMap"].(map[string]any)
	if !ok || len(m) != 0 {
		t.Errorf("expected empty autocorrectMap object, got %v", payload["autocorrectMap"])
	}
	ignored, ok := payload["ignoredErrors"].([]any)
	if !ok || len(ignored) != 0 {
		t.Errorf("expected empty ignoredErrors array, got %v", payload["ignoredErrors"])
	}
}

func TestSpellingSettingsPartialMerge(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPatch, "/api/settings/spelling", map[string]any{
		"personalDictionary": []string{"quixotic"},
		"autocorrectMap":     map[string]string{"teh": "the"},
	}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// Updating one field leaves the others alone.
	rr = env.do(t, http.MethodPatch, "/api/settings/spelling", map[string]any{
		"ignoredErrors": []string{"err-1"},
	}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/settings/spelling", nil, cookie)
	payload := decodeResponse(t, rr)
	dict, _ := payload["personalDictionary"].([]any)
	if len(dict) != 1 || dict[0] != "quixotic" {
		t.Errorf("expected personalDictionary to survive later patch, got %v", payload["personalDictionary"])
	}
	m, _ := payload["autocorrectMap"].(map[string]any)
	if m["teh"] != "the" {
		t.Errorf("expected autocorrectMap to survive later patch, got %v", payload["autocorrectMap"])
	}
	ignored, _ := payload["ignoredErrors"].([]any)
	if len(ignored) != 1 || ignored[0] != "err-1" {
		t.Errorf("expected ignoredErrors updated, got %v", payload["ignoredErrors"])
	}
}

func TestSpellingSettingsDropsUnknownAndWrongTypedFields(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPatch, "/api/settings/spelling", map[string]any{
		"personalDictionary": "not-an-array",
		"autocorrectMap":     map[string]string{"teh": "the"},
		"somethingElse":      42,
	}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with silent drops, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/settings/spelling", nil, cookie)
	payload := decodeResponse(t, rr)
	dict, _ := payload["personalDictionary"].([]any)
	if len(dict) != 0 {
		t.Errorf("expected wrong-typed personalDictionary to be dropped, got %v", payload["personalDictionary"])
	}
	m, _ := payload["autocorrectMap"].(map[string]any)
	if m["teh"] != "the" {
		t.Errorf("expected well-typed autocorrectMap to be applied, got %v", payload["autocorrectMap"])
	}
	if _, exists := payload["somethingElse"]; exists {
		t.Errorf("expected unknown key to be dropped from settings")
	}
}

func TestSpellingSettingsAcceptEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPatch, "/api/settings/spelling", map[string]any{
		"personalDictionary": []string{"quixotic"},
	}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	// Every field is optional, so a literally empty body is a no-op success.
	rr = env.do(t, http.MethodPatch, "/api/settings/spelling", nil, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeResponse(t, rr)["success"] != true {
		t.Fatalf("expected success:true, got %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/settings/spelling", nil, cookie)
	dict, _ := decodeResponse(t, rr)["personalDictionary"].([]any)
	if len(dict) != 1 || dict[0] != "quixotic" {
		t.Fatalf("expected settings untouched by empty patch, got %v", dict)
	}
}

func TestSpellingSettingsAreTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "user-alice", "alice@example.com", "Alice")
	bob := env.login(t, "user-bob", "bob@example.com", "Bob")

	rr := env.do(t, http.MethodPatch, "/api/settings/spelling", map[string]any{
		"personalDictionary": []string{"alicism"},
	}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/settings/spelling", nil, bob)
	payload := decodeResponse(t, rr)
	dict, _ := payload["personalDictionary"].([]any)
	if len(dict) != 0 {
		t.Fatalf("expected bob's settings to be untouched, got %v", payload["personalDictionary"])
	}
}

func TestUpdateDisplayNameTrims(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPatch, "/api/me", map[string]string{"displayName": "  Avery Quinn  "}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeResponse(t, rr)["success"] != true {
		t.Fatalf("expected success:true, got %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/me", nil, cookie)
	user, _ := decodeResponse(t, rr)["user"].(map[string]any)
	if user["displayName"] != "Avery Quinn" {
		t.Fatalf("expected trimmed displayName, got %v", user["displayName"])
	}
}

func TestUpdateDisplayNameRejectsWhitespaceOnly(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPatch, "/api/me", map[string]string{"displayName": "   "}, cookie)
	assertErrorBody(t, rr, http.StatusBadRequest)

	// The stored name is unchanged.
	rr = env.do(t, http.MethodGet, "/api/me", nil, cookie)
	user, _ := decodeResponse(t, rr)["user"].(map[string]any)
	if user["displayName"] != "Avery" {
		t.Fatalf("expected displayName unchanged after rejected update, got %v", user["displayName"])
	}
}

func TestDeleteAccountRemovesUserAndSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodDelete, "/api/me", nil, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var cleared *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName {
			cleared = c
		}
	}
	if cleared == nil || cleared.MaxAge != -1 {
		t.Errorf("expected delete to clear the session cookie")
	}

	if _, err := env.store.GetUser(context.Background(), "user-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user record removed, got err=%v", err)
	}

	rr = env.do(t, http.MethodGet, "/api/documents", nil, cookie)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with the old cookie after delete, got %d", rr.Code)
	}
}

func TestDeleteAccountLeavesDocuments(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user-1", "avery@example.com", "Avery")

	rr := env.do(t, http.MethodPost, "/api/documents", map[string]string{"title": "Kept"}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, "/api/me", nil, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	docs, err := env.store.ListDocuments(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected documents to survive account deletion, got %d", len(docs))
	}
}
