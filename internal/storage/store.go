// Package storage persists appointments and their chat messages in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dkeye/Televisit/internal/domain"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("appointment not found")

// Store wraps the appointment database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS appointments (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL DEFAULT 'scheduled',
			created_at DATETIME NOT NULL,
			ended_at   DATETIME
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create appointments table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			appointment_id TEXT NOT NULL REFERENCES appointments(id),
			sender         TEXT NOT NULL,
			content        TEXT NOT NULL,
			sent_at        DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_appointment ON messages(appointment_id, seq);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string { return s.path }

// CreateAppointment inserts a scheduled appointment. An empty id gets a
// generated one.
func (s *Store) CreateAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	if id == "" {
		id = uuid.NewString()
	}
	a := domain.Appointment{ID: id, Status: domain.StatusScheduled, CreatedAt: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, status, created_at) VALUES (?, ?, ?)`,
		a.ID, string(a.Status), a.CreatedAt,
	); err != nil {
		return domain.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return a, nil
}

func (s *Store) Appointment(ctx context.Context, id string) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a       domain.Appointment
		status  string
		endedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, created_at, ended_at FROM appointments WHERE id = ?`, id,
	).Scan(&a.ID, &status, &a.CreatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("query appointment: %w", err)
	}
	a.Status = domain.AppointmentStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		a.EndedAt = &t
	}
	return a, nil
}

func (s *Store) Status(ctx context.Context, id string) (domain.AppointmentStatus, error) {
	a, err := s.Appointment(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

// SetInCall moves a scheduled appointment to in_call. Other states are left alone.
func (s *Store) SetInCall(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = ? WHERE id = ? AND status = ?`,
		string(domain.StatusInCall), id, string(domain.StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// EndCall marks the appointment completed. Ending a completed appointment
// keeps the first ended_at.
func (s *Store) EndCall(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, ended_at = COALESCE(ended_at, ?) WHERE id = ?`,
		string(domain.StatusCompleted), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("end appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns the appointment's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, appointmentID string) ([]domain.ChatMessage, error) {
	if _, err := s.Appointment(ctx, appointmentID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, content, sent_at FROM messages WHERE appointment_id = ? ORDER BY seq`,
		appointmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PostMessage appends a message. A zero timestamp is set to now.
func (s *Store) PostMessage(ctx context.Context, appointmentID string, m domain.ChatMessage) error {
	if _, err := s.Appointment(ctx, appointmentID); err != nil {
		return err
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (appointment_id, sender, content, sent_at) VALUES (?, ?, ?, ?)`,
		appointmentID, m.Sender, m.Content, m.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
