// Package repository persists the gateway's durable state: conversation
// history for authenticated users and crop disease report history. Message
// bodies are encrypted at rest when an encryption key is configured.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/crypto"
	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

type Store struct {
	db        *sql.DB
	encryptor *crypto.Encryptor // nil means plaintext storage
}

func NewStore(db *sql.DB, encryptor *crypto.Encryptor) *Store {
	return &Store{db: db, encryptor: encryptor}
}

// EnsureSchema creates the gateway's tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			chat_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS conversation_messages_user_chat_idx
			ON conversation_messages (user_id, chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS disease_reports (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			crop       TEXT NOT NULL,
			severity   TEXT NOT NULL,
			report     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS disease_reports_user_idx
			ON disease_reports (user_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AppendMessage stores one conversation message.
func (s *Store) AppendMessage(ctx context.Context, msg domain.StoredMessage) error {
	content := msg.Content
	if s.encryptor != nil {
		sealed, err := s.encryptor.Encrypt(content)
		if err != nil {
			return fmt.Errorf("encrypt message: %w", err)
		}
		content = sealed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (user_id, chat_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.UserID, msg.ChatID, msg.Role, content, time.Now())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// AppendExchange persists a user/assistant turn pair in a detached goroutine.
// Best effort: failures are logged and never reach the request path.
func (s *Store) AppendExchange(userID, chatID, userText, assistantText string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for _, m := range []domain.StoredMessage{
			{UserID: userID, ChatID: chatID, Role: domain.RoleUser, Content: userText},
			{UserID: userID, ChatID: chatID, Role: domain.RoleAssistant, Content: assistantText},
		} {
			if err := s.AppendMessage(ctx, m); err != nil {
				slog.Warn("failed to persist conversation message", "error", err)
				return
			}
		}
	}()
}

// LoadMessages returns a chat's history, oldest first.
func (s *Store) LoadMessages(ctx context.Context, userID, chatID string, limit int) ([]domain.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, chat_id, role, content, created_at
		FROM conversation_messages
		WHERE user_id = $1 AND chat_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.StoredMessage
	for rows.Next() {
		var m domain.StoredMessage
		if err := rows.Scan(&m.UserID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if s.encryptor != nil {
			plain, err := s.encryptor.Decrypt(m.Content)
			if err != nil {
				slog.Warn("undecryptable message row skipped", "chat_id", chatID)
				continue
			}
			m.Content = plain
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SaveDiseaseReport records a diagnosis for the user's history. Fire-and-
// forget callers wrap this in a goroutine.
func (s *Store) SaveDiseaseReport(ctx context.Context, userID string, report domain.DiseaseReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disease_reports (id, user_id, crop, severity, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), userID, report.Crop, string(report.Severity), payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert disease report: %w", err)
	}
	return nil
}

// SaveDiseaseReportAsync persists a diagnosis in a detached goroutine,
// logging failures only.
func (s *Store) SaveDiseaseReportAsync(userID string, report domain.DiseaseReport) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SaveDiseaseReport(ctx, userID, report); err != nil {
			slog.Warn("failed to persist disease report", "error", err)
		}
	}()
}

// ListDiseaseReports returns a user's diagnosis history, newest first.
func (s *Store) ListDiseaseReports(ctx context.Context, userID string, limit int) ([]domain.DiseaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, crop, severity, report, created_at
		FROM disease_reports
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query disease reports: %w", err)
	}
	defer rows.Close()

	var records []domain.DiseaseRecord
	for rows.Next() {
		var rec domain.DiseaseRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Crop, &rec.Severity, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan disease report: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Report); err != nil {
			slog.Warn("undecodable disease report row skipped", "id", rec.ID)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
