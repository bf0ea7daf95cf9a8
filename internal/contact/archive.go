package contact

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Message is one stored contact submission.
type Message struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive keeps submissions in the contact_messages table.
type Archive struct {
	db *sql.DB
}

// NewArchive returns an archive over db. The schema comes from storage.Open.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Save stores f and returns its row id.
func (a *Archive) Save(ctx context.Context, f Form) (int64, error) {
	res, err := a.db.ExecContext(ctx, `
		INSERT INTO contact_messages (name, email, subject, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.Name, f.Email, f.Subject, f.Message, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert contact message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("contact message id: %w", err)
	}
	return id, nil
}

// MarkDelivered flags a stored message as mailed.
func (a *Archive) MarkDelivered(ctx context.Context, id int64) error {
	if _, err := a.db.ExecContext(ctx, `UPDATE contact_messages SET delivered = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark contact message %d: %w", id, err)
	}
	return nil
}

// Recent returns up to limit messages, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, email, subject, message, delivered, created_at
		FROM contact_messages
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query contact messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Message, &m.Delivered, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of stored messages.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contact messages: %w", err)
	}
	return n, nil
}
