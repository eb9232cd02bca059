package ingest

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatgraph/chatgraph/pkg/common"
)

//go:embed schema.sql
var schema string

// Store is the local archive of ingested profiles and message histories.
// It backs both the ingest command (writes) and the worker (reads).
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the archive database and applies the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive at %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply archive schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProfile inserts or replaces one profile.
func (s *Store) SaveProfile(profile common.UserProfile) error {
	labelIDs, err := json.Marshal(profile.LabelIDs)
	if err != nil {
		return fmt.Errorf("failed to encode label ids for %s: %w", profile.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO profile (id, nickname, remark, account, label_ids, gender, signature, country, province, city, mobile)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nickname = excluded.nickname,
			remark = excluded.remark,
			account = excluded.account,
			label_ids = excluded.label_ids,
			gender = excluded.gender,
			signature = excluded.signature,
			country = excluded.country,
			province = excluded.province,
			city = excluded.city,
			mobile = excluded.mobile`,
		profile.ID, profile.Nickname, profile.Remark, profile.Account, string(labelIDs),
		profile.Gender, profile.Signature, profile.Country, profile.Province, profile.City, profile.Mobile,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.ID, err)
	}
	return nil
}

// Profile loads one profile by id. The second return value reports whether
// it exists.
func (s *Store) Profile(id string) (common.UserProfile, bool, error) {
	var profile common.UserProfile
	var labelIDs string

	row := s.db.QueryRow(`
		SELECT id, nickname, remark, account, label_ids, gender, signature, country, province, city, mobile
		FROM profile WHERE id = ?`, id)
	err := row.Scan(&profile.ID, &profile.Nickname, &profile.Remark, &profile.Account, &labelIDs,
		&profile.Gender, &profile.Signature, &profile.Country, &profile.Province, &profile.City, &profile.Mobile)
	if err == sql.ErrNoRows {
		return common.UserProfile{}, false, nil
	}
	if err != nil {
		return common.UserProfile{}, false, fmt.Errorf("failed to load profile %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(labelIDs), &profile.LabelIDs); err != nil {
		return common.UserProfile{}, false, fmt.Errorf("failed to decode label ids for %s: %w", id, err)
	}
	return profile, true, nil
}

// ReplaceMessages replaces the stored history of one contact in a single
// transaction. Re-ingesting an export is therefore idempotent.
func (s *Store) ReplaceMessages(contactID string, messages []common.ChatMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM message WHERE contact_id = ?`, contactID); err != nil {
		return fmt.Errorf("failed to clear history of %s: %w", contactID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO message (contact_id, sender_id, room_id, type, body, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		_, err := stmt.Exec(contactID, msg.SenderID, msg.RoomID, msg.Type, msg.Body,
			msg.Timestamp.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to save message for %s: %w", contactID, err)
		}
	}

	return tx.Commit()
}

// Messages loads the stored history of one contact in insertion order.
func (s *Store) Messages(contactID string) ([]common.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT sender_id, room_id, type, body, sent_at
		FROM message WHERE contact_id = ? ORDER BY id`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", contactID, err)
	}
	defer rows.Close()

	var messages []common.ChatMessage
	for rows.Next() {
		var msg common.ChatMessage
		var sentAt string
		if err := rows.Scan(&msg.SenderID, &msg.RoomID, &msg.Type, &msg.Body, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message of %s: %w", contactID, err)
		}
		if ts, err := time.Parse(time.RFC3339, sentAt); err == nil {
			msg.Timestamp = ts
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ContactIDs lists every contact id that has stored messages.
func (s *Store) ContactIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT contact_id FROM message ORDER BY contact_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
