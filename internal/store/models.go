package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist. Reads that have a
// documented default (spelling settings, profiles) never return it.
var ErrNotFound = errors.New("not found")

// User is the identity record. The id is provider-issued and opaque; display
// fields are mutable by the owning user only.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	PhotoURL      string    `json:"photoUrl"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Profile is the per-user profile document merged into the identity record on
// read. Fields carries arbitrary profile data; identity values win for
// name and photo when both are present.
type Profile struct {
	UserID      string         `json:"-"`
	DisplayName string         `json:"displayName"`
	PhotoURL    string         `json:"photoUrl"`
	Fields      map[string]any `json:"fields"`
}

type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chapter belongs to one document. Order is caller-assigned and not unique;
// retrieval sorts ascending by Order with ties broken by arrival.
type Chapter struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"-"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Note has the same shape as Chapter but reads in unspecified order.
type Note struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"-"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SpellingSettings is a per-user singleton. A missing record is a valid
// state and reads as the all-empty defaults below.
type SpellingSettings struct {
	PersonalDictionary []string          `json:"personalDictionary"`
	AutocorrectMap     map[string]string `json:"autocorrectMap"`
	IgnoredErrors      []string          `json:"ignoredErrors"`
}

// DefaultSpellingSettings is the explicit default object returned when no
// record exists.
func DefaultSpellingSettings() SpellingSettings {
	return SpellingSettings{
		PersonalDictionary: []string{},
		AutocorrectMap:     map[string]string{},
		IgnoredErrors:      []string{},
	}
}

// SpellingSettingsPatch carries only the fields present in an update; nil
// means "leave unchanged".
type SpellingSettingsPatch struct {
	PersonalDictionary *[]string
	AutocorrectMap     *map[string]string
	IgnoredErrors      *[]string
}

// Empty reports whether the patch carries no recognized field.
func (p SpellingSettingsPatch) Empty() bool {
	return p.PersonalDictionary == nil && p.AutocorrectMap == nil && p.IgnoredErrors == nil
}
