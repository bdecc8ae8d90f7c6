// Package postgres stores scraped records as JSONB documents in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pet-listings-scraper/internal/id/uuid"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "pets"

// effectivePrice mirrors pet.Price.Effective over the stored document.
const effectivePrice = `COALESCE((document->'price'->>'price_after_discount')::double precision, ` +
	`(document->'price'->>'price_without_any_discounts')::double precision)`

// Config controls the Postgres connection pool used for pet documents.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

type pool interface {
	execer
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PetStore implements pet.Store on a single JSONB table.
type PetStore struct {
	pool  pool
	table string
	ids   pet.IDGenerator
}

// NewPetStore connects to Postgres and makes sure the table exists.
func NewPetStore(ctx context.Context, cfg Config) (*PetStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPetStoreWithPool(p, cfg.Table, nil)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewPetStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPetStoreWithPool(p pool, table string, ids pet.IDGenerator) (*PetStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if ids == nil {
		ids = uuid.New()
	}
	return &PetStore{pool: p, table: table, ids: ids}, nil
}

// EnsureSchema creates the documents table when missing.
func (s *PetStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	link TEXT,
	document JSONB NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Insert writes records and returns their ids.
func (s *PetStore) Insert(ctx context.Context, records []pet.Record) ([]string, error) {
	return s.insertAll(ctx, s.pool, records)
}

// Replace deletes every row and inserts records in one transaction.
func (s *PetStore) Replace(ctx context.Context, records []pet.Record) (_ []string, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return nil, fmt.Errorf("clear %s: %w", s.table, err)
	}
	ids, err := s.insertAll(ctx, tx, records)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return ids, nil
}

func (s *PetStore) insertAll(ctx context.Context, db execer, records []pet.Record) ([]string, error) {
	query := fmt.Sprintf(`INSERT INTO %s (id, link, document) VALUES ($1, NULLIF($2, ''), $3)`, s.table)
	ids := make([]string, 0, len(records))
	for _, record := range records {
		id, err := s.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("assign record id: %w", err)
		}
		doc, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		if _, err := db.Exec(ctx, query, id, record.LinkValue(), doc); err != nil {
			return nil, fmt.Errorf("insert record: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Find returns matching records in insertion order.
func (s *PetStore) Find(ctx context.Context, filter pet.Filter) ([]pet.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	where, args := BuildWhere(filter)
	query := fmt.Sprintf("SELECT document FROM %s%s ORDER BY seq", s.table, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := []pet.Record{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var record pet.Record
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return out, nil
}

// Close releases the underlying pool resources.
func (s *PetStore) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// BuildWhere translates filter into a WHERE clause with positional args.
// An empty filter yields an empty clause.
func BuildWhere(filter pet.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(format string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"county", filter.County},
		{"city", filter.City},
		{"category", filter.Category},
	} {
		if v := pet.Value(field.value); v != "" {
			add("document->>'"+field.name+"' = $%d", v)
		}
	}
	if breed := pet.Value(filter.Breed); breed != "" {
		if filter.BreedPattern() {
			add("document->>'breed' ~* $%d", breed)
		} else {
			add("document->>'breed' = $%d", breed)
		}
	}
	if filter.MinPrice != nil {
		add(effectivePrice+" >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add(effectivePrice+" <= $%d", *filter.MaxPrice)
	}
	if expr := pet.Value(filter.DescriptionRegex); expr != "" {
		add("document->>'description' ~* $%d", expr)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
