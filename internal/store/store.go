package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartqr/internal/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no inventory row matches an item code.
var ErrNotFound = errors.New("item not registered")

// TimeLayout is the ISO-8601 form used for created_at and request_date.
const TimeLayout = "2006-01-02T15:04:05"

// Store owns the sqlite handle for the inventory and request log tables.
type Store struct {
	db *sql.DB

	// Now is the clock used for created_at; tests replace it.
	Now func() time.Time
}

// Open connects to the database at path and creates the tables if needed.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &Store{db: db, Now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_name TEXT NOT NULL,
			item_code TEXT UNIQUE NOT NULL,
			category TEXT,
			total_stock INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS request_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_code TEXT NOT NULL,
			item_name TEXT NOT NULL,
			quantity_requested INTEGER NOT NULL,
			request_date TEXT NOT NULL,
			requester TEXT
		)`,
	}
	for _, t := range tables {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterOrReset inserts the item if its code is unseen, then overwrites
// total_stock with qty. Name, category and created_at of an existing row
// are left as they were.
func (s *Store) RegisterOrReset(ctx context.Context, name, code string, qty int, category string) (models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Item{}, err
	}
	defer tx.Rollback()

	now := s.Now().Format(TimeLayout)
	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO inventory (item_name, item_code, category, total_stock, created_at) VALUES (?, ?, ?, ?, ?)",
		name, code, nullString(category), qty, now)
	if err != nil {
		return models.Item{}, fmt.Errorf("insert %s: %w", code, err)
	}
	if _, err = tx.ExecContext(ctx, "UPDATE inventory SET total_stock = ? WHERE item_code = ?", qty, code); err != nil {
		return models.Item{}, fmt.Errorf("reset %s: %w", code, err)
	}
	item, err := getItem(ctx, tx, code)
	if err != nil {
		return models.Item{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

// Adjust adds delta to the item's total_stock and returns the updated row.
// The result is allowed to go negative.
func (s *Store) Adjust(ctx context.Context, code string, delta int) (models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Item{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE inventory SET total_stock = total_stock + ? WHERE item_code = ?", delta, code)
	if err != nil {
		return models.Item{}, fmt.Errorf("adjust %s: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Item{}, fmt.Errorf("adjust %s: %w", code, err)
	}
	if n == 0 {
		return models.Item{}, ErrNotFound
	}
	item, err := getItem(ctx, tx, code)
	if err != nil {
		return models.Item{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

// GetItem returns the row for code, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, code string) (models.Item, error) {
	return getItem(ctx, s.db, code)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q queryer, code string) (models.Item, error) {
	var i models.Item
	err := q.QueryRowContext(ctx,
		"SELECT id, item_name, item_code, COALESCE(category,''), total_stock, created_at FROM inventory WHERE item_code = ?", code).
		Scan(&i.ID, &i.ItemName, &i.ItemCode, &i.Category, &i.TotalStock, &i.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("get %s: %w", code, err)
	}
	return i, nil
}

// ListItems returns every inventory row in insertion order.
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, item_name, item_code, COALESCE(category,''), total_stock, created_at FROM inventory ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Item{}
	for rows.Next() {
		var i models.Item
		if err := rows.Scan(&i.ID, &i.ItemName, &i.ItemCode, &i.Category, &i.TotalStock, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// ListRequests returns every request log row in insertion order.
func (s *Store) ListRequests(ctx context.Context) ([]models.RequestEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, item_code, item_name, quantity_requested, request_date, COALESCE(requester,'') FROM request_log ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []models.RequestEntry{}
	for rows.Next() {
		var e models.RequestEntry
		if err := rows.Scan(&e.ID, &e.ItemCode, &e.ItemName, &e.QuantityRequested, &e.RequestDate, &e.Requester); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearItems deletes every inventory row. The request log is kept.
func (s *Store) ClearItems(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM inventory")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Tx is the write surface available inside WithTx.
type Tx struct {
	tx *sql.Tx
}

// AppendRequest inserts one request log row and fills in its ID.
func (t *Tx) AppendRequest(ctx context.Context, e *models.RequestEntry) error {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO request_log (item_code, item_name, quantity_requested, request_date, requester) VALUES (?, ?, ?, ?, ?)",
		e.ItemCode, e.ItemName, e.QuantityRequested, e.RequestDate, nullString(e.Requester))
	if err != nil {
		return fmt.Errorf("append request %s: %w", e.ItemCode, err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// WithTx runs fn inside one transaction. Any error from fn, or a panic,
// rolls back every write made through the Tx.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendRequests inserts all entries in a single transaction.
func (s *Store) AppendRequests(ctx context.Context, entries []models.RequestEntry) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for i := range entries {
			if err := tx.AppendRequest(ctx, &entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
