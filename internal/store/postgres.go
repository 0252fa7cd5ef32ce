package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore is the tenant document store. Every query carries the
// verified user id; no method accepts a caller-supplied tenant.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureUser creates the identity record on first sign-in and refreshes the
// provider-issued fields on later sign-ins. Display fields already set by
// the user are preserved.
func (s *PostgresStore) EnsureUser(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (id, email, display_name, photo_url, email_verified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			email_verified = EXCLUDED.email_verified,
			display_name = CASE WHEN users.display_name = '' THEN EXCLUDED.display_name ELSE users.display_name END,
			photo_url = CASE WHEN users.photo_url = '' THEN EXCLUDED.photo_url ELSE users.photo_url END,
			updated_at = NOW()
		RETURNING id, email, display_name, photo_url, email_verified, created_at, updated_at
	`
	var out User
	err := s.db.QueryRowContext(ctx, query, user.ID, user.Email, user.DisplayName, user.PhotoURL, user.EmailVerified).
		Scan(&out.ID, &out.Email, &out.DisplayName, &out.PhotoURL, &out.EmailVerified, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, photo_url, email_verified, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PhotoURL, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetProfile returns an empty profile when no row exists; absence is not an
// error.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var (
		profile Profile
		raw     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, photo_url, fields
		FROM user_profiles
		WHERE user_id = $1
	`, userID).Scan(&profile.UserID, &profile.DisplayName, &profile.PhotoURL, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{UserID: userID, Fields: map[string]any{}}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.Fields = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &profile.Fields); err != nil {
			return Profile{}, fmt.Errorf("decode profile fields: %w", err)
		}
	}
	return profile, nil
}

// UpdateDisplayName writes both the identity record and the profile record.
func (s *PostgresStore) UpdateDisplayName(ctx context.Context, userID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name = $2, updated_at = NOW() WHERE id = $1
	`, userID, name)
	if err != nil {
		return fmt.Errorf("update identity display name: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = NOW()
	`, userID, name)
	if err != nil {
		return fmt.Errorf("update profile display name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePhotoURL(ctx context.Context, userID, photoURL string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET photo_url = $2, updated_at = NOW() WHERE id = $1
	`, userID, photoURL)
	if err != nil {
		return fmt.Errorf("update photo url: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the profile document and the identity record. Documents,
// chapters, notes, and settings are intentionally left in place.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, item.ID, item.UserID, item.Title, item.Content, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChapters(ctx context.Context, userID, documentID string) ([]Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, title, content, sort_order, created_at, updated_at
		FROM chapters
		WHERE user_id = $1 AND document_id = $2
		ORDER BY sort_order ASC, seq ASC
	`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	items := make([]Chapter, 0)
	for rows.Next() {
		var item Chapter
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.UserID, &item.Title, &item.Content, &item.Order, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertChapter(ctx context.Context, item Chapter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (id, document_id, user_id, title, content, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, item.ID, item.DocumentID, item.UserID, item.Title, item.Content, item.Order, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	return nil
}

// ListNotes reads in unspecified order: no ordering clause is applied even
// though an order value is stored.
func (s *PostgresStore) ListNotes(ctx context.Context, userID, documentID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, title, content, sort_order, created_at, updated_at
		FROM notes
		WHERE user_id = $1 AND document_id = $2
	`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.UserID, &item.Title, &item.Content, &item.Order, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, item Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, document_id, user_id, title, content, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, item.ID, item.DocumentID, item.UserID, item.Title, item.Content, item.Order, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// GetSpellingSettings returns the explicit defaults when no record exists.
func (s *PostgresStore) GetSpellingSettings(ctx context.Context, userID string) (SpellingSettings, error) {
	var rawDict, rawMap, rawIgnored []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT personal_dictionary, autocorrect_map, ignored_errors
		FROM spelling_settings
		WHERE user_id = $1
	`, userID).Scan(&rawDict, &rawMap, &rawIgnored)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSpellingSettings(), nil
	}
	if err != nil {
		return SpellingSettings{}, fmt.Errorf("get spelling settings: %w", err)
	}

	settings := DefaultSpellingSettings()
	if err := json.Unmarshal(rawDict, &settings.PersonalDictionary); err != nil {
		return SpellingSettings{}, fmt.Errorf("decode personal dictionary: %w", err)
	}
	if err := json.Unmarshal(rawMap, &settings.AutocorrectMap); err != nil {
		return SpellingSettings{}, fmt.Errorf("decode autocorrect map: %w", err)
	}
	if err := json.Unmarshal(rawIgnored, &settings.IgnoredErrors); err != nil {
		return SpellingSettings{}, fmt.Errorf("decode ignored errors: %w", err)
	}
	return settings, nil
}

// UpdateSpellingSettings merges only the fields carried by the patch,
// creating the record if absent.
func (s *PostgresStore) UpdateSpellingSettings(ctx context.Context, userID string, patch SpellingSettingsPatch) error {
	encode := func(v any) ([]byte, error) {
		if v == nil {
			return nil, nil
		}
		return json.Marshal(v)
	}

	var dict, acMap, ignored []byte
	var err error
	if patch.PersonalDictionary != nil {
		if dict, err = encode(*patch.PersonalDictionary); err != nil {
			return fmt.Errorf("encode personal dictionary: %w", err)
		}
	}
	if patch.AutocorrectMap != nil {
		if acMap, err = encode(*patch.AutocorrectMap); err != nil {
			return fmt.Errorf("encode autocorrect map: %w", err)
		}
	}
	if patch.IgnoredErrors != nil {
		if ignored, err = encode(*patch.IgnoredErrors); err != nil {
			return fmt.Errorf("encode ignored errors: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spelling_settings (user_id, personal_dictionary, autocorrect_map, ignored_errors)
		VALUES ($1, COALESCE($2, '[]'::jsonb), COALESCE($3, '{}'::jsonb), COALESCE($4, '[]'::jsonb))
		ON CONFLICT (user_id) DO UPDATE SET
			personal_dictionary = COALESCE($2, spelling_settings.personal_dictionary),
			autocorrect_map = COALESCE($3, spelling_settings.autocorrect_map),
			ignored_errors = COALESCE($4, spelling_settings.ignored_errors),
			updated_at = NOW()
	`, userID, dict, acMap, ignored)
	if err != nil {
		return fmt.Errorf("update spelling settings: %w", err)
	}
	return nil
}
