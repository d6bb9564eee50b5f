package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pgvector/pgvector-go"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Like returns the case-insensitive pattern operator. SQLite's LIKE already
// folds ASCII case.
func (d Dialect) Like() string {
	if d == DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// SpecExpr returns an expression extracting a specification value as text.
// keyParam is the placeholder carrying the key.
func (d Dialect) SpecExpr(column, keyParam string) string {
	if d == DialectPostgres {
		return fmt.Sprintf("(%s->>(%s)::text)", column, keyParam)
	}
	return fmt.Sprintf("CAST(json_extract(%s, '$.\"' || %s || '\"') AS TEXT)", column, keyParam)
}

// EncodeVector converts an embedding into a driver value for the embedding column.
func (d Dialect) EncodeVector(vec []float32) (interface{}, error) {
	if vec == nil {
		return nil, nil
	}
	if d == DialectPostgres {
		return pgvector.NewVector(vec), nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return string(data), nil
}

// DecodeVector parses an embedding column value.
func (d Dialect) DecodeVector(raw interface{}) ([]float32, error) {
	if raw == nil {
		return nil, nil
	}
	if d == DialectPostgres {
		var v pgvector.Vector
		if err := v.Scan(raw); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		return v.Slice(), nil
	}
	data, err := rawJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return vec, nil
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dialect Dialect, dsn string, pool PoolConfig) (*sql.DB, error) {
	if dialect == DialectSQLite && pool.JournalMode != "" && !strings.Contains(dsn, "_journal_mode") && dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "_journal_mode=" + pool.JournalMode + "&_foreign_keys=on"
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
