package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements the same contract as PostgresStore in memory. It
// backs handler and service tests, which keeps the tenancy and ordering
// semantics under test without a database.
type MemoryStore struct {
	mu        sync.Mutex
	seq       int64
	users     map[string]User
	profiles  map[string]Profile
	documents []memoryDocument
	chapters  []memoryChapter
	notes     []memoryNote
	settings  map[string]SpellingSettings
}

type memoryDocument struct {
	Document
	seq int64
}

type memoryChapter struct {
	Chapter
	seq int64
}

type memoryNote struct {
	Note
	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		profiles: make(map[string]Profile),
		settings: make(map[string]SpellingSettings),
	}
}

func (s *MemoryStore) next() int64 {
	s.seq++
	return s.seq
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) EnsureUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		s.users[user.ID] = user
		return user, nil
	}
	existing.Email = user.Email
	existing.EmailVerified = user.EmailVerified
	if existing.DisplayName == "" {
		existing.DisplayName = user.DisplayName
	}
	if existing.PhotoURL == "" {
		existing.PhotoURL = user.PhotoURL
	}
	s.users[user.ID] = existing
	return existing, nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return Profile{UserID: userID, Fields: map[string]any{}}, nil
	}
	if profile.Fields == nil {
		profile.Fields = map[string]any{}
	}
	return profile, nil
}

func (s *MemoryStore) UpdateDisplayName(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.DisplayName = name
	s.users[userID] = user

	profile := s.profiles[userID]
	profile.UserID = userID
	profile.DisplayName = name
	s.profiles[userID] = profile
	return nil
}

func (s *MemoryStore) UpdatePhotoURL(_ context.Context, userID, photoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.PhotoURL = photoURL
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	delete(s.users, userID)
	// Documents, chapters, notes, and settings stay: deletion does not cascade.
	return nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, userID string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]memoryDocument, 0)
	for _, item := range s.documents {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].seq > items[j].seq
	})
	out := make([]Document, 0, len(items))
	for _, item := range items {
		out = append(out, item.Document)
	}
	return out, nil
}

func (s *MemoryStore) InsertDocument(_ context.Context, item Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, memoryDocument{Document: item, seq: s.next()})
	return nil
}

func (s *MemoryStore) ListChapters(_ context.Context, userID, documentID string) ([]Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]memoryChapter, 0)
	for _, item := range s.chapters {
		if item.UserID == userID && item.DocumentID == documentID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].seq < items[j].seq
	})
	out := make([]Chapter, 0, len(items))
	for _, item := range items {
		out = append(out, item.Chapter)
	}
	return out, nil
}

func (s *MemoryStore) InsertChapter(_ context.Context, item Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters = append(s.chapters, memoryChapter{Chapter: item, seq: s.next()})
	return nil
}

func (s *MemoryStore) ListNotes(_ context.Context, userID, documentID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Note, 0)
	for _, item := range s.notes {
		if item.UserID == userID && item.DocumentID == documentID {
			out = append(out, item.Note)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertNote(_ context.Context, item Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, memoryNote{Note: item, seq: s.next()})
	return nil
}

func (s *MemoryStore) GetSpellingSettings(_ context.Context, userID string) (SpellingSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.settings[userID]
	if !ok {
		return DefaultSpellingSettings(), nil
	}
	return settings, nil
}

func (s *MemoryStore) UpdateSpellingSettings(_ context.Context, userID string, patch SpellingSettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.settings[userID]
	if !ok {
		settings = DefaultSpellingSettings()
	}
	if patch.PersonalDictionary != nil {
		settings.PersonalDictionary = *patch.PersonalDictionary
	}
	if patch.AutocorrectMap != nil {
		settings.AutocorrectMap = *patch.AutocorrectMap
	}
	if patch.IgnoredErrors != nil {
		settings.IgnoredErrors = *patch.IgnoredErrors
	}
	s.settings[userID] = settings
	return nil
}
