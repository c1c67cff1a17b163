package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store with SQLite. Each document is one JSON row;
// queries filter and sort with json_extract.
type SQLiteStore struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS globals (
  slug TEXT PRIMARY KEY,
  data TEXT NOT NULL,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// NewSQLiteStore opens (or creates) a SQLite database and its tables.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := NewSQLiteStoreFromDB(db)
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an open connection. Call Migrate before use
// when the tables may not exist.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the document tables if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return s.migrate(ctx)
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Create inserts a new document.
func (s *SQLiteStore) Create(ctx context.Context, collection string, doc map[string]any) (map[string]any, error) {
	id, err := docID(doc)
	if err != nil {
		return nil, err
	}
	stored, data, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
		collection, id, string(data))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return nil, fmt.Errorf("%s %s: %w", collection, id, ErrConflict)
		}
		return nil, fmt.Errorf("insert: %w", err)
	}
	return stored, nil
}

// FindByID returns a document by ID.
func (s *SQLiteStore) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return decode(data)
}

// Find returns one page of matching documents.
func (s *SQLiteStore) Find(ctx context.Context, collection string, q Query) (Result, error) {
	q = q.normalized()
	conds, err := parseWhere(q.Where)
	if err != nil {
		return Result{}, err
	}
	sortPath, desc, err := parseSort(q.Sort)
	if err != nil {
		return Result{}, err
	}

	where := []string{"collection = ?"}
	args := []any{collection}
	for _, c := range conds {
		clause, clauseArgs, err := conditionSQL(c)
		if err != nil {
			return Result{}, err
		}
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents"+whereSQL, args...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("count: %w", err)
	}

	query := "SELECT data FROM documents" + whereSQL
	if sortPath != nil {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		query += " ORDER BY json_extract(data, ?) " + dir + ", rowid ASC"
		args = append(args, jsonPath(sortPath))
	} else {
		query += " ORDER BY rowid ASC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	var docs []map[string]any
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return Result{}, fmt.Errorf("scan: %w", err)
		}
		doc, err := decode(data)
		if err != nil {
			return Result{}, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return newResult(q, docs, total), nil
}

// Update replaces a document.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, doc map[string]any) (map[string]any, error) {
	stored, _, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}
	stored["id"] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?",
		string(data), collection, id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return stored, nil
}

// Delete removes a document.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetGlobal returns a global document.
func (s *SQLiteStore) GetGlobal(ctx context.Context, slug string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM globals WHERE slug = ?", slug).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select global: %w", err)
	}
	return decode(data)
}

// SetGlobal replaces a global document.
func (s *SQLiteStore) SetGlobal(ctx context.Context, slug string, doc map[string]any) (map[string]any, error) {
	stored, data, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO globals (slug, data) VALUES (?, ?)
		ON CONFLICT(slug) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		slug, string(data))
	if err != nil {
		return nil, fmt.Errorf("upsert global: %w", err)
	}
	return stored, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func decode(data string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// jsonPath converts field path segments to a SQLite JSON path, e.g.
// ["items", "0", "label"] -> $."items"[0]."label".
func jsonPath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range path {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString(`."` + seg + `"`)
	}
	return b.String()
}

func conditionSQL(c condition) (string, []any, error) {
	extract := "json_extract(data, ?)"
	path := jsonPath(c.path)

	switch c.operator {
	case opEquals, opNotEquals:
		v, err := sqlValue(c.value)
		if err != nil {
			return "", nil, err
		}
		if c.operator == opNotEquals {
			return extract + " IS NOT ?", []any{path, v}, nil
		}
		return extract + " IS ?", []any{path, v}, nil
	case opIn:
		list, _ := c.value.([]any)
		placeholders := make([]string, len(list))
		args := []any{path}
		for i, item := range list {
			v, err := sqlValue(item)
			if err != nil {
				return "", nil, err
			}
			placeholders[i] = "?"
			args = append(args, v)
		}
		return extract + " IN (" + strings.Join(placeholders, ", ") + ")", args, nil
	case opExists:
		if want, _ := c.value.(bool); want {
			return extract + " IS NOT NULL", []any{path}, nil
		}
		return extract + " IS NULL", []any{path}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", c.operator)
	}
}

// sqlValue converts a normalized JSON value to what json_extract returns
// for it: objects and lists compare as their JSON text.
func sqlValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode where value: %v", ErrInvalidQuery, err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}
