package subscriber

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tgcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Add(ctx context.Context, sub Subscriber) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(id, full_name, username, language_code, state, subscribed_at, seq)
		 VALUES(?,?,?,?,?,?, COALESCE((SELECT MAX(seq) FROM subscribers), 0) + 1)`,
		sub.ID, sub.FullName, nullStr(sub.Username), nullStr(sub.LanguageCode),
		string(sub.State), sub.SubscribedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrDuplicate
	}
	return storageErr("add", err)
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, username, language_code, state, subscribed_at
		 FROM subscribers WHERE id = ?`, id)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, ErrNotFound
	}
	if err != nil {
		return Subscriber{}, storageErr("get", err)
	}
	return sub, nil
}

func (s *sqliteStore) Update(ctx context.Context, sub Subscriber) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET full_name=?, username=?, language_code=?, state=?, subscribed_at=?
		 WHERE id=?`,
		sub.FullName, nullStr(sub.Username), nullStr(sub.LanguageCode),
		string(sub.State), sub.SubscribedAt.UTC().Format(time.RFC3339Nano), sub.ID,
	)
	if err != nil {
		return storageErr("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id=?`, id)
	if err != nil {
		return false, storageErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) IDs(ctx context.Context, filter *State) ([]int64, error) {
	q := `SELECT id FROM subscribers`
	args := []any{}
	if filter != nil {
		q += ` WHERE state = ?`
		args = append(args, string(*filter))
	}
	q += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("ids", err)
		}
		ids = append(ids, id)
	}
	return ids, storageErr("ids", rows.Err())
}

func (s *sqliteStore) Count(ctx context.Context, filter *State) (int, error) {
	q := `SELECT COUNT(*) FROM subscribers`
	args := []any{}
	if filter != nil {
		q += ` WHERE state = ?`
		args = append(args, string(*filter))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (s *sqliteStore) Iterate(ctx context.Context, filter *State, batchSize int, fn func(Subscriber) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	lastSeq := int64(0)
	for {
		q := `SELECT id, full_name, username, language_code, state, subscribed_at, seq
		      FROM subscribers WHERE seq > ?`
		args := []any{lastSeq}
		if filter != nil {
			q += ` AND state = ?`
			args = append(args, string(*filter))
		}
		q += ` ORDER BY seq LIMIT ?`
		args = append(args, batchSize)

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return storageErr("iterate", err)
		}
		batch := make([]Subscriber, 0, batchSize)
		for rows.Next() {
			var (
				sub                Subscriber
				username, langCode sql.NullString
				subscribedAt       string
				seq                int64
			)
			if err := rows.Scan(&sub.ID, &sub.FullName, &username, &langCode, (*string)(&sub.State), &subscribedAt, &seq); err != nil {
				rows.Close()
				return storageErr("iterate", err)
			}
			sub.Username = username.String
			sub.LanguageCode = langCode.String
			sub.SubscribedAt, _ = time.Parse(time.RFC3339Nano, subscribedAt)
			batch = append(batch, sub)
			lastSeq = seq
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return storageErr("iterate", err)
		}
		rows.Close()

		for _, sub := range batch {
			if err := fn(sub); err != nil {
				return err
			}
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (Subscriber, error) {
	var (
		sub                Subscriber
		username, langCode sql.NullString
		subscribedAt       string
	)
	if err := row.Scan(&sub.ID, &sub.FullName, &username, &langCode, (*string)(&sub.State), &subscribedAt); err != nil {
		return Subscriber{}, err
	}
	sub.Username = username.String
	sub.LanguageCode = langCode.String
	sub.SubscribedAt, _ = time.Parse(time.RFC3339Nano, subscribedAt)
	return sub, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
