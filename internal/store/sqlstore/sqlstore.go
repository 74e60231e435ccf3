// Package sqlstore is the durable store.Store backend, a MySQL schema
// reached through sqlx the way tinode/chat's adapter packages reach
// their backing databases: a thin struct wrapping *sqlx.DB, one method
// per Store operation, sentinel errors translated at the boundary.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/mombroker/mom/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username   VARCHAR(128) NOT NULL PRIMARY KEY,
	password   VARCHAR(255) NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS topics (
	name  VARCHAR(256) NOT NULL PRIMARY KEY,
	owner VARCHAR(128) NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_messages (
	id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	topic_name VARCHAR(256) NOT NULL,
	sender     VARCHAR(128) NOT NULL,
	content    TEXT NOT NULL,
	timestamp  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (topic_name) REFERENCES topics(name) ON DELETE CASCADE,
	INDEX idx_topic_messages_topic (topic_name, id)
);

CREATE TABLE IF NOT EXISTS queues (
	name  VARCHAR(256) NOT NULL PRIMARY KEY,
	owner VARCHAR(128) NOT NULL
);

CREATE TABLE IF NOT EXISTS queue_messages (
	id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	queue_name VARCHAR(256) NOT NULL,
	sender     VARCHAR(128) NOT NULL,
	content    TEXT NOT NULL,
	timestamp  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (queue_name) REFERENCES queues(name) ON DELETE CASCADE,
	INDEX idx_queue_messages_queue (queue_name, id)
);
`

// Store is a MySQL-backed store.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *Store) CreateUser(username, passwordHash string) error {
	_, err := s.db.Exec(`INSERT INTO users (username, password) VALUES (?, ?)`, username, passwordHash)
	if isDuplicateKey(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetUser(username string) (*store.User, error) {
	var u store.User
	err := s.db.Get(&u, `SELECT username, password, created_at FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers() ([]string, error) {
	var names []string
	if err := s.db.Select(&names, `SELECT username FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) CreateTopic(name, owner string) error {
	_, err := s.db.Exec(`INSERT INTO topics (name, owner) VALUES (?, ?)`, name, owner)
	if isDuplicateKey(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) DeleteTopic(name string) error {
	_, err := s.db.Exec(`DELETE FROM topics WHERE name = ?`, name)
	return err
}

func (s *Store) GetTopic(name string) (*store.Topic, error) {
	var t store.Topic
	err := s.db.Get(&t, `SELECT name, owner FROM topics WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTopics() ([]string, error) {
	var names []string
	if err := s.db.Select(&names, `SELECT name FROM topics ORDER BY name`); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) AppendTopicMessage(name, sender, content string) error {
	res, err := s.db.Exec(
		`INSERT INTO topic_messages (topic_name, sender, content)
		 SELECT name, ?, ? FROM topics WHERE name = ?`,
		sender, content, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReadTopicMessages(name string) ([]store.TopicMessage, error) {
	if _, err := s.GetTopic(name); err != nil {
		return nil, err
	}
	var msgs []store.TopicMessage
	err := s.db.Select(&msgs,
		`SELECT id, topic_name, sender, content, timestamp FROM topic_messages
		 WHERE topic_name = ? ORDER BY id ASC`, name)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) CreateQueue(name, owner string) error {
	_, err := s.db.Exec(`INSERT INTO queues (name, owner) VALUES (?, ?)`, name, owner)
	if isDuplicateKey(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) DeleteQueue(name string) error {
	_, err := s.db.Exec(`DELETE FROM queues WHERE name = ?`, name)
	return err
}

func (s *Store) GetQueue(name string) (*store.Queue, error) {
	var q store.Queue
	err := s.db.Get(&q, `SELECT name, owner FROM queues WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) ListQueues() ([]string, error) {
	var names []string
	if err := s.db.Select(&names, `SELECT name FROM queues ORDER BY name`); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) Enqueue(name, sender, content string) error {
	res, err := s.db.Exec(
		`INSERT INTO queue_messages (queue_name, sender, content)
		 SELECT name, ?, ? FROM queues WHERE name = ?`,
		sender, content, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PopQueue performs the atomic consume: a SELECT ... FOR UPDATE locks
// the oldest row within a transaction, and the matching DELETE removes
// it before commit, so two concurrent consumers on the same queue can
// never observe the same message.
func (s *Store) PopQueue(name string) (*store.QueueMessage, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.Get(&exists, `SELECT COUNT(*) FROM queues WHERE name = ?`, name); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	var msg store.QueueMessage
	err = tx.Get(&msg,
		`SELECT id, queue_name, sender, content, timestamp FROM queue_messages
		 WHERE queue_name = ? ORDER BY id ASC LIMIT 1 FOR UPDATE`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`DELETE FROM queue_messages WHERE id = ?`, msg.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &msg, nil
}
