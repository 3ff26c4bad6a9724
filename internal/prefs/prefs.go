package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a subscription id does not exist.
	ErrNotFound = errors.New("prefs: not found")
	// ErrDuplicate is returned when an identical subscription already exists.
	ErrDuplicate = errors.New("prefs: duplicate")
)

// Preferences is the single-row viewer state: saved identities, the last
// executed query and presentation settings. It is the service-side
// equivalent of the origin app's local preference store.
type Preferences struct {
	Sections             []string  `json:"sections"`
	Professors           []string  `json:"professors"`
	LastMode             string    `json:"last_mode"`
	LastValue            string    `json:"last_value"`
	Theme                string    `json:"theme"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultPreferences returns the state used before anything is saved.
func DefaultPreferences() Preferences {
	return Preferences{
		Sections:   []string{},
		Professors: []string{},
		LastMode:   "all",
		Theme:      "system",
	}
}

// Subscription is one digest-notification registration.
type Subscription struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "section" or "professor"
	Value     string    `json:"value"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists preferences and subscriptions in a single SQLite file.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	sections TEXT NOT NULL,
	professors TEXT NOT NULL,
	last_mode TEXT NOT NULL,
	last_value TEXT NOT NULL,
	theme TEXT NOT NULL,
	notifications_enabled INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (kind, value, endpoint)
);
`

// Open opens (creating if needed) the preference database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("prefs: database path is empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open database: %w", err)
	}
	// A single writer keeps SQLite happy under the modernc driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadPreferences returns the stored viewer state, or defaults when nothing
// has been saved yet.
func (s *Store) LoadPreferences(ctx context.Context) (Preferences, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sections, professors, last_mode, last_value, theme, notifications_enabled, updated_at
		FROM preferences WHERE id = 1
	`)

	var (
		p                    Preferences
		sectionsJSON         string
		professorsJSON       string
		notificationsEnabled int
		updatedAt            string
	)
	err := row.Scan(&sectionsJSON, &professorsJSON, &p.LastMode, &p.LastValue, &p.Theme, &notificationsEnabled, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("prefs: load preferences: %w", err)
	}

	if err := json.Unmarshal([]byte(sectionsJSON), &p.Sections); err != nil {
		p.Sections = []string{}
	}
	if err := json.Unmarshal([]byte(professorsJSON), &p.Professors); err != nil {
		p.Professors = []string{}
	}
	p.NotificationsEnabled = notificationsEnabled != 0
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

// SavePreferences upserts the single preference row.
func (s *Store) SavePreferences(ctx context.Context, p Preferences) error {
	if p.Sections == nil {
		p.Sections = []string{}
	}
	if p.Professors == nil {
		p.Professors = []string{}
	}
	switch p.Theme {
	case "light", "dark", "system":
	default:
		p.Theme = "system"
	}

	sectionsJSON, err := json.Marshal(p.Sections)
	if err != nil {
		return fmt.Errorf("prefs: encode sections: %w", err)
	}
	professorsJSON, err := json.Marshal(p.Professors)
	if err != nil {
		return fmt.Errorf("prefs: encode professors: %w", err)
	}

	notifications := 0
	if p.NotificationsEnabled {
		notifications = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (id, sections, professors, last_mode, last_value, theme, notifications_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sections = excluded.sections,
			professors = excluded.professors,
			last_mode = excluded.last_mode,
			last_value = excluded.last_value,
			theme = excluded.theme,
			notifications_enabled = excluded.notifications_enabled,
			updated_at = excluded.updated_at
	`,
		string(sectionsJSON),
		string(professorsJSON),
		p.LastMode,
		p.LastValue,
		p.Theme,
		notifications,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("prefs: save preferences: %w", err)
	}
	return nil
}

// AddSubscription registers a digest subscription and returns it with its
// generated id. An identical (kind, value, endpoint) triple yields
// ErrDuplicate.
func (s *Store) AddSubscription(ctx context.Context, kind, value, endpoint string) (Subscription, error) {
	switch kind {
	case "section", "professor":
	default:
		return Subscription{}, fmt.Errorf("prefs: invalid subscription kind %q", kind)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Subscription{}, errors.New("prefs: subscription value is empty")
	}
	if endpoint == "" {
		return Subscription{}, errors.New("prefs: subscription endpoint is empty")
	}

	sub := Subscription{
		ID:        uuid.NewString(),
		Kind:      kind,
		Value:     value,
		Endpoint:  endpoint,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, kind, value, endpoint, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sub.ID, sub.Kind, sub.Value, sub.Endpoint, sub.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Subscription{}, ErrDuplicate
		}
		return Subscription{}, fmt.Errorf("prefs: add subscription: %w", err)
	}
	return sub, nil
}

// RemoveSubscription deletes a subscription by id.
func (s *Store) RemoveSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("prefs: remove subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("prefs: remove subscription: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscriptions returns all subscriptions ordered by creation time.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, value, endpoint, created_at
		FROM subscriptions ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("prefs: list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		var (
			sub       Subscription
			createdAt string
		)
		if err := rows.Scan(&sub.ID, &sub.Kind, &sub.Value, &sub.Endpoint, &createdAt); err != nil {
			return nil, fmt.Errorf("prefs: scan subscription: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			sub.CreatedAt = t
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
