package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const sessionCookieName = "session"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	secure     bool
}

// NewHTTPServer wires the service behind the HTTP surface. secure controls
// the Secure flag on the session cookie and should be true in production.
func NewHTTPServer(service *Service, corsOrigin string, secure bool) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, secure: secure}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"message":   "PennPad API is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.service.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/sessionLogin" {
		s.handleSessionLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/logout" {
		s.service.Logout(r.Context(), cookieValue(r))
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
		return
	}

	// Text transforms take no session; they operate on the request body alone.
	if r.Method == http.MethodPost && r.URL.Path == "/api/ai/expand" {
		s.handleExpand(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ai/shorten" {
		s.handleShorten(w, r)
		return
	}

	// GET /api/me has its own failure shape: an unauthenticated caller gets
	// {"user": null} with the 401 so the frontend can branch on the field.
	if r.Method == http.MethodGet && r.URL.Path == "/api/me" {
		sess, err := s.service.VerifySession(r.Context(), cookieValue(r))
		if err != nil {
			if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrInvalidSession) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"user": nil})
				return
			}
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		user, err := s.service.CurrentUser(r.Context(), sess.UserID)
		if err != nil {
			if errors.Is(err, ErrInvalidSession) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"user": nil})
				return
			}
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodPatch && r.URL.Path == "/api/me":
		s.handleUpdateMe(w, r, session)
	case r.Method == http.MethodDelete && r.URL.Path == "/api/me":
		s.handleDeleteMe(w, r, session)
	case r.Method == http.MethodPost && r.URL.Path == "/api/me/photo":
		s.handleUploadPhoto(w, r, session)
	case r.Method == http.MethodGet && r.URL.Path == "/api/documents":
		s.handleListDocuments(w, r, session)
	case r.Method == http.MethodPost && r.URL.Path == "/api/documents":
		s.handleCreateDocument(w, r, session)
	case r.Method == http.MethodGet && r.URL.Path == "/api/chapters":
		s.handleListChapters(w, r, session)
	case r.Method == http.MethodPost && r.URL.Path == "/api/chapters":
		s.handleCreateChapter(w, r, session)
	case r.Method == http.MethodGet && r.URL.Path == "/api/notes":
		s.handleListNotes(w, r, session)
	case r.Method == http.MethodPost && r.URL.Path == "/api/notes":
		s.handleCreateNote(w, r, session)
	case r.Method == http.MethodGet && r.URL.Path == "/api/settings/spelling":
		s.handleGetSpellingSettings(w, r, session)
	case r.Method == http.MethodPatch && r.URL.Path == "/api/settings/spelling":
		s.handleUpdateSpellingSettings(w, r, session)
	case r.Method == http.MethodGet && r.URL.Path == "/api/search":
		s.handleSearch(w, r, session)
	case r.Method == http.MethodPost && r.URL.Path == "/api/create-checkout-session":
		s.handleCreateCheckoutSession(w, r, session)
	case r.Method == http.MethodPost && r.URL.Path == "/api/stripe/create-billing-portal-session":
		s.handleBillingPortal(w, r, session)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleSessionLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, _, err := s.service.SessionLogin(r.Context(), body.IDToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.UpdateDisplayName(r.Context(), session.UserID, body.DisplayName); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleDeleteMe(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteAccount(r.Context(), session.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.service.Logout(r.Context(), cookieValue(r))
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleUploadPhoto(w http.ResponseWriter, r *http.Request, session Session) {
	url, err := s.service.UploadAvatar(r.Context(), session.UserID, r.Header.Get("Content-Type"), r.Body, r.ContentLength)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photoUrl": url})
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListDocuments(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": items})
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.service.CreateDocument(r.Context(), session.UserID, body.Title, body.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *HTTPServer) handleListChapters(w http.ResponseWriter, r *http.Request, session Session) {
	documentID := strings.TrimSpace(r.URL.Query().Get("documentId"))
	items, err := s.service.ListChapters(r.Context(), session.UserID, documentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": items})
}

func (s *HTTPServer) handleCreateChapter(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		DocumentID string `json:"documentId"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		Order      int    `json:"order"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.service.CreateChapter(r.Context(), session.UserID, body.DocumentID, body.Title, body.Content, body.Order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *HTTPServer) handleListNotes(w http.ResponseWriter, r *http.Request, session Session) {
	documentID := strings.TrimSpace(r.URL.Query().Get("documentId"))
	items, err := s.service.ListNotes(r.Context(), session.UserID, documentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": items})
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		DocumentID string `json:"documentId"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		Order      int    `json:"order"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.service.CreateNote(r.Context(), session.UserID, body.DocumentID, body.Title, body.Content, body.Order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *HTTPServer) handleGetSpellingSettings(w http.ResponseWriter, r *http.Request, session Session) {
	settings, err := s.service.SpellingSettings(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handleUpdateSpellingSettings(w http.ResponseWriter, r *http.Request, session Session) {
	var body map[string]json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.UpdateSpellingSettings(r.Context(), session.UserID, body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		offset = parsed
	}
	writeJSON(w, http.StatusOK, s.service.SearchDocuments(session.UserID, q, limit, offset))
}

func (s *HTTPServer) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request, session Session) {
	id, err := s.service.CreateCheckoutSession(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *HTTPServer) handleBillingPortal(w http.ResponseWriter, r *http.Request, session Session) {
	url, err := s.service.BillingPortal(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handleExpand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text   string `json:"text"`
		Amount string `json:"amount"`
		Option string `json:"option"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	expanded, err := s.service.ExpandText(r.Context(), body.Text, body.Amount, body.Option)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expandedText": expanded,
		"originalText": body.Text,
		"amount":       body.Amount,
		"option":       body.Option,
	})
}

func (s *HTTPServer) handleShorten(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text   string `json:"text"`
		Option string `json:"option"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shortened, err := s.service.ShortenText(r.Context(), body.Text, body.Option)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shortenedText": shortened,
		"originalText":  body.Text,
		"option":        body.Option,
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	session, err := s.service.VerifySession(r.Context(), cookieValue(r))
	if err != nil {
		if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrInvalidSession) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return Session{}, false
	}
	return session, true
}

// fail translates a service error into a response and logs the server-side
// cause, which never reaches the client verbatim.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, message)
}

// setSessionCookie sets a browser-session cookie: no Expires or Max-Age. The
// 1-day validity bound lives in the token and the registry TTL, not here.
func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the flat error shape every failure shares. Internal codes
// stay in the logs.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An empty body reads as an empty object; every decoded field is
		// optional at this layer and validated downstream.
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message
	}
	if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrInvalidSession) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "server error"
}
