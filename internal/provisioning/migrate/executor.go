package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"

	_ "github.com/jackc/pgx/v5/stdlib"

	"paperroom/migrations"
)

// SQLExecutor applies the embedded tenant schema over a short-lived TCP
// connection. A fresh connection per run keeps tenant databases out of the
// control-plane pool.
type SQLExecutor struct {
	schema fs.FS
}

// NewSQLExecutor creates an executor backed by the embedded tenant schema.
func NewSQLExecutor() *SQLExecutor {
	return &SQLExecutor{schema: migrations.Tenant}
}

// ApplySchema runs every embedded schema file, in lexical order, inside one
// transaction.
func (e *SQLExecutor) ApplySchema(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open tenant database: %w", err)
	}
	defer db.Close()

	stmts, err := e.schemaStatements()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, f := range stmts {
		if _, err := tx.ExecContext(ctx, f.sql); err != nil {
			return fmt.Errorf("apply %s: %w", f.name, err)
		}
	}
	return tx.Commit()
}

// SetupVectorSearch enables pgvector and the document embedding index. The
// extension is unavailable on some instances; callers treat failure as a
// degraded-but-working outcome.
func (e *SQLExecutor) SetupVectorSearch(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open tenant database: %w", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS embedding vector(1536)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_embedding
		   ON documents USING ivfflat (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vector setup: %w", err)
		}
	}
	return nil
}

type schemaFile struct {
	name string
	sql  string
}

// schemaStatements reads the embedded schema files sorted by name.
func (e *SQLExecutor) schemaStatements() ([]schemaFile, error) {
	entries, err := fs.Glob(e.schema, "tenant/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(entries)

	out := make([]schemaFile, 0, len(entries))
	for _, name := range entries {
		data, err := fs.ReadFile(e.schema, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, schemaFile{name: name, sql: string(data)})
	}
	return out, nil
}
