// Package app holds the HTTP surface and the service layer behind it. The
// service depends on narrow interfaces so tests can run against the in-memory
// store and miniredis without touching Postgres or upstream providers.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pennpad/api/internal/auth"
	"pennpad/api/internal/billing"
	"pennpad/api/internal/config"
	"pennpad/api/internal/identity"
	"pennpad/api/internal/search"
	"pennpad/api/internal/session"
	"pennpad/api/internal/store"
	"pennpad/api/internal/util"
)

var (
	// ErrNoCredential means the request carried no session cookie at all.
	ErrNoCredential = errors.New("no session credential")
	// ErrInvalidSession means the cookie was present but expired, tampered
	// with, or revoked.
	ErrInvalidSession = errors.New("invalid session")
)

type dataStore interface {
	Ping(ctx context.Context) error
	EnsureUser(ctx context.Context, user store.User) (store.User, error)
	GetUser(ctx context.Context, userID string) (store.User, error)
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	UpdateDisplayName(ctx context.Context, userID, name string) error
	UpdatePhotoURL(ctx context.Context, userID, photoURL string) error
	DeleteUser(ctx context.Context, userID string) error
	ListDocuments(ctx context.Context, userID string) ([]store.Document, error)
	InsertDocument(ctx context.Context, item store.Document) error
	ListChapters(ctx context.Context, userID, documentID string) ([]store.Chapter, error)
	InsertChapter(ctx context.Context, item store.Chapter) error
	ListNotes(ctx context.Context, userID, documentID string) ([]store.Note, error)
	InsertNote(ctx context.Context, item store.Note) error
	GetSpellingSettings(ctx context.Context, userID string) (store.SpellingSettings, error)
	UpdateSpellingSettings(ctx context.Context, userID string, patch store.SpellingSettingsPatch) error
}

type sessionRegistry interface {
	Save(ctx context.Context, tokenHash string, record session.Record, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Record, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type idTokenVerifier interface {
	Verify(token string) (identity.Claims, error)
}

type billingClient interface {
	CreateCheckoutSession(ctx context.Context, email string) (string, error)
	CreateBillingPortalSession(ctx context.Context, email string) (string, error)
}

type completionClient interface {
	Expand(ctx context.Context, text, amount, option string) (string, error)
	Shorten(ctx context.Context, text, option string) (string, error)
}

type documentSearcher interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
}

type avatarStore interface {
	PutAvatar(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
}

// Deps bundles the optional upstream clients. Any of them may be nil; the
// matching endpoints then answer 503 (billing, completion, media) or degrade
// (search).
type Deps struct {
	Billing    billingClient
	Completion completionClient
	Search     documentSearcher
	Media      avatarStore
}

// Service implements the application operations behind the HTTP handlers.
type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionRegistry
	idTokens idTokenVerifier
	deps     Deps
}

func New(cfg config.Config, st dataStore, sessions sessionRegistry, idTokens idTokenVerifier, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		idTokens: idTokens,
		deps:     deps,
	}
}

// Session is the identity attached to an authenticated request.
type Session struct {
	UserID        string
	Email         string
	EmailVerified bool
	JTI           string
	ExpiresAt     time.Time
}

// SessionLogin exchanges a verified provider ID token for a session cookie
// value. The user record is created or refreshed as a side effect.
func (s *Service) SessionLogin(ctx context.Context, idToken string) (token string, expiresAt time.Time, err error) {
	if strings.TrimSpace(idToken) == "" {
		return "", time.Time{}, validationError("idToken is required")
	}

	claims, err := s.idTokens.Verify(idToken)
	if err != nil {
		return "", time.Time{}, domainError(http.StatusBadRequest, "INVALID_CREDENTIAL", "invalid idToken")
	}

	now := time.Now().UTC()
	user, err := s.store.EnsureUser(ctx, store.User{
		ID:            claims.UserID,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ensure user: %w", err)
	}

	expiresAt = now.Add(s.cfg.SessionTTL)
	token, err = auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub:           user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		JTI:           util.NewID("sess"),
		Exp:           expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue session token: %w", err)
	}

	err = s.sessions.Save(ctx, auth.HashToken(token), session.Record{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		CreatedAt:     now,
	}, expiresAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("register session: %w", err)
	}
	return token, expiresAt, nil
}

// VerifySession validates a cookie value against both the token signature and
// the server-side registry. Every protected request passes through here; a
// revoked session fails even while the token itself is still within its
// validity window.
func (s *Service) VerifySession(ctx context.Context, cookieValue string) (Session, error) {
	if cookieValue == "" {
		return Session{}, ErrNoCredential
	}

	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), cookieValue)
	if err != nil {
		return Session{}, ErrInvalidSession
	}

	if _, err := s.sessions.Lookup(ctx, auth.HashToken(cookieValue)); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, ErrInvalidSession
		}
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}

	return Session{
		UserID:        claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		JTI:           claims.JTI,
		ExpiresAt:     time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the session behind the cookie value. It never fails from the
// caller's point of view: an absent, garbled, or already-revoked credential
// still logs out cleanly.
func (s *Service) Logout(ctx context.Context, cookieValue string) {
	if cookieValue == "" {
		return
	}
	if err := s.sessions.Revoke(ctx, auth.HashToken(cookieValue)); err != nil {
		log.Warn().Err(err).Msg("logout: revoke session")
	}
}

// CurrentUser merges the identity record with the profile document. Identity
// values win for the standard fields; arbitrary profile fields pass through.
func (s *Service) CurrentUser(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	view := make(map[string]any, len(profile.Fields)+5)
	for k, v := range profile.Fields {
		view[k] = v
	}
	displayName := user.DisplayName
	if displayName == "" {
		displayName = profile.DisplayName
	}
	photoURL := user.PhotoURL
	if photoURL == "" {
		photoURL = profile.PhotoURL
	}
	view["id"] = user.ID
	view["email"] = user.Email
	view["displayName"] = displayName
	view["photoUrl"] = photoURL
	view["emailVerified"] = user.EmailVerified
	return view, nil
}

// UpdateDisplayName trims and stores a new display name on both the identity
// record and the profile document.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	trimmed := strings.TrimSpace(displayName)
	if trimmed == "" {
		return validationError("displayName is required")
	}
	if err := s.store.UpdateDisplayName(ctx, userID, trimmed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidSession
		}
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}

// DeleteAccount removes the identity record and profile, then it is the
// caller's job to revoke the session. Documents are intentionally left in
// place; they become unreachable once the owner id can no longer log in.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// UploadAvatar stores a profile photo in object storage and records the
// resulting URL on the identity record.
func (s *Service) UploadAvatar(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	if s.deps.Media == nil {
		return "", domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "photo upload is not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", validationError("photo must be an image")
	}
	url, err := s.deps.Media.PutAvatar(ctx, userID, contentType, body, size)
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	if err := s.store.UpdatePhotoURL(ctx, userID, url); err != nil {
		return "", fmt.Errorf("update photo url: %w", err)
	}
	return url, nil
}

// ListDocuments returns the caller's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]store.Document, error) {
	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// CreateDocument inserts a document and its default "Chapter 1" carrying the
// same initial content. The two writes are not atomic: if the chapter write
// fails the document still exists and the request reports the error.
func (s *Service) CreateDocument(ctx context.Context, userID, title, content string) (string, error) {
	if title == "" {
		return "", validationError("title is required")
	}

	now := time.Now().UTC()
	doc := store.Document{
		ID:        util.NewID("doc"),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	chapter := store.Chapter{
		ID:         util.NewID("ch"),
		DocumentID: doc.ID,
		UserID:     userID,
		Title:      "Chapter 1",
		Content:    content,
		Order:      0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertChapter(ctx, chapter); err != nil {
		return "", fmt.Errorf("insert default chapter: %w", err)
	}

	if s.deps.Search != nil {
		s.deps.Search.IndexDocument(search.DocumentRecord{
			ID:      doc.ID,
			UserID:  userID,
			Title:   doc.Title,
			Content: doc.Content,
		})
	}
	return doc.ID, nil
}

// ListChapters returns a document's chapters ordered by their order field.
// The document id is taken at face value: an unknown or foreign id yields an
// empty list, not an error.
func (s *Service) ListChapters(ctx context.Context, userID, documentID string) ([]store.Chapter, error) {
	if documentID == "" {
		return nil, validationError("documentId is required")
	}
	chapters, err := s.store.ListChapters(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	if chapters == nil {
		chapters = []store.Chapter{}
	}
	return chapters, nil
}

// CreateChapter inserts a chapter under the given document id without
// checking that the document exists.
func (s *Service) CreateChapter(ctx context.Context, userID, documentID, title, content string, order int) (string, error) {
	if documentID == "" {
		return "", validationError("documentId is required")
	}
	if title == "" {
		return "", validationError("title is required")
	}

	now := time.Now().UTC()
	chapter := store.Chapter{
		ID:         util.NewID("ch"),
		DocumentID: documentID,
		UserID:     userID,
		Title:      title,
		Content:    content,
		Order:      order,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertChapter(ctx, chapter); err != nil {
		return "", fmt.Errorf("insert chapter: %w", err)
	}
	return chapter.ID, nil
}

// ListNotes returns a document's notes in no particular order.
func (s *Service) ListNotes(ctx context.Context, userID, documentID string) ([]store.Note, error) {
	if documentID == "" {
		return nil, validationError("documentId is required")
	}
	notes, err := s.store.ListNotes(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if notes == nil {
		notes = []store.Note{}
	}
	return notes, nil
}

// CreateNote inserts a note under the given document id without checking that
// the document exists.
func (s *Service) CreateNote(ctx context.Context, userID, documentID, title, content string, order int) (string, error) {
	if documentID == "" {
		return "", validationError("documentId is required")
	}
	if title == "" {
		return "", validationError("title is required")
	}

	now := time.Now().UTC()
	note := store.Note{
		ID:         util.NewID("note"),
		DocumentID: documentID,
		UserID:     userID,
		Title:      title,
		Content:    content,
		Order:      order,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	return note.ID, nil
}

// SpellingSettings returns the caller's spelling settings, or the explicit
// defaults when none have been saved yet.
func (s *Service) SpellingSettings(ctx context.Context, userID string) (store.SpellingSettings, error) {
	settings, err := s.store.GetSpellingSettings(ctx, userID)
	if err != nil {
		return store.SpellingSettings{}, fmt.Errorf("get spelling settings: %w", err)
	}
	return settings, nil
}

// UpdateSpellingSettings merges the recognized, well-typed fields of the
// request body into the stored settings. Unknown keys and wrong-typed values
// are dropped silently rather than rejected.
func (s *Service) UpdateSpellingSettings(ctx context.Context, userID string, body map[string]json.RawMessage) error {
	var patch store.SpellingSettingsPatch
	if raw, ok := body["personalDictionary"]; ok {
		var words []string
		if err := json.Unmarshal(raw, &words); err == nil {
			patch.PersonalDictionary = &words
		}
	}
	if raw, ok := body["autocorrectMap"]; ok {
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err == nil {
			patch.AutocorrectMap = &m
		}
	}
	if raw, ok := body["ignoredErrors"]; ok {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err == nil {
			patch.IgnoredErrors = &ids
		}
	}
	if patch.Empty() {
		return nil
	}
	if err := s.store.UpdateSpellingSettings(ctx, userID, patch); err != nil {
		return fmt.Errorf("update spelling settings: %w", err)
	}
	return nil
}

// CreateCheckoutSession starts a subscription checkout for the caller and
// returns the checkout session id.
func (s *Service) CreateCheckoutSession(ctx context.Context, sess Session) (string, error) {
	if s.deps.Billing == nil {
		return "", domainError(http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "billing is not configured")
	}
	if sess.Email == "" {
		return "", validationError("session has no email address")
	}
	id, err := s.deps.Billing.CreateCheckoutSession(ctx, sess.Email)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return id, nil
}

// BillingPortal returns the billing portal URL for the caller's customer
// record. Callers without a billing history get a validation error, not a
// server error.
func (s *Service) BillingPortal(ctx context.Context, sess Session) (string, error) {
	if s.deps.Billing == nil {
		return "", domainError(http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "billing is not configured")
	}
	if sess.Email == "" {
		return "", validationError("session has no email address")
	}
	url, err := s.deps.Billing.CreateBillingPortalSession(ctx, sess.Email)
	if err != nil {
		if errors.Is(err, billing.ErrNoCustomer) {
			return "", domainError(http.StatusBadRequest, "NO_BILLING_ACCOUNT", "no billing account for this user")
		}
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return url, nil
}

// ExpandText lengthens a passage via the completion provider.
func (s *Service) ExpandText(ctx context.Context, text, amount, option string) (string, error) {
	if s.deps.Completion == nil {
		return "", domainError(http.StatusServiceUnavailable, "COMPLETION_UNAVAILABLE", "text completion is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return "", validationError("text is required")
	}
	if strings.TrimSpace(amount) == "" {
		return "", validationError("amount is required")
	}
	expanded, err := s.deps.Completion.Expand(ctx, text, amount, option)
	if err != nil {
		return "", fmt.Errorf("expand text: %w", err)
	}
	return expanded, nil
}

// ShortenText condenses a passage via the completion provider.
func (s *Service) ShortenText(ctx context.Context, text, option string) (string, error) {
	if s.deps.Completion == nil {
		return "", domainError(http.StatusServiceUnavailable, "COMPLETION_UNAVAILABLE", "text completion is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return "", validationError("text is required")
	}
	shortened, err := s.deps.Completion.Shorten(ctx, text, option)
	if err != nil {
		return "", fmt.Errorf("shorten text: %w", err)
	}
	return shortened, nil
}

// SearchDocuments runs a tenant-scoped search over the caller's documents.
// Without a configured searcher it returns an empty response.
func (s *Service) SearchDocuments(userID, text string, limit, offset int) search.Response {
	if s.deps.Search == nil || strings.TrimSpace(text) == "" {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.deps.Search.Search(search.Query{
		UserID: userID,
		Text:   text,
		Limit:  limit,
		Offset: offset,
	})
}

// Ready reports whether the store and the session registry are reachable.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	return nil
}
