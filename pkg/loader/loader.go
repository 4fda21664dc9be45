// Package loader bulk-loads a finished CSV file into a relational table.
// The CSV must conform to the 59-column contract; first data row at row 2.
// Connection setup, COPY execution and transaction commit happen here; the
// loader never inspects or rewrites the file contents.
package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
)

// Config carries all connection data explicitly; there is no process-wide
// connection state.
type Config struct {
	// DSN is a PostgreSQL connection string.
	DSN string

	// Table is the target table, optionally schema-qualified.
	Table string
}

// Loader executes bulk loads against one configured target.
type Loader struct {
	cfg    Config
	logger *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg Config, logger *zap.Logger) (*Loader, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: dsn cannot be empty", pkgerrors.ErrInvalidConfig)
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("%w: table cannot be empty", pkgerrors.ErrInvalidConfig)
	}
	if _, err := tableIdent(cfg.Table); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", pkgerrors.ErrInvalidConfig)
	}

	return &Loader{cfg: cfg, logger: logger}, nil
}

// Load streams the CSV at csvPath into the configured table with a single
// COPY inside one transaction and returns the number of rows loaded. The
// header row is consumed by COPY, so data starts at row 2.
func (l *Loader) Load(ctx context.Context, csvPath string) (int64, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("%w: open csv: %v", pkgerrors.ErrLoadFailed, err)
	}
	defer f.Close()

	conn, err := pgx.Connect(ctx, l.cfg.DSN)
	if err != nil {
		return 0, fmt.Errorf("%w: connect: %v", pkgerrors.ErrLoadFailed, err)
	}
	defer conn.Close(ctx)

	var version string
	if err := conn.QueryRow(ctx, "select version()").Scan(&version); err == nil {
		if len(version) > 80 {
			version = version[:80]
		}
		l.logger.Info("Connected to database", zap.String("serverVersion", version))
	}

	ident, err := tableIdent(l.cfg.Table)
	if err != nil {
		return 0, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %v", pkgerrors.ErrLoadFailed, err)
	}
	defer tx.Rollback(ctx)

	copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, HEADER true)", ident)
	l.logger.Info("Executing bulk load",
		zap.String("table", ident),
		zap.String("csvPath", csvPath))

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, f, copySQL)
	if err != nil {
		return 0, fmt.Errorf("%w: copy: %v", pkgerrors.ErrLoadFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", pkgerrors.ErrLoadFailed, err)
	}

	rows := tag.RowsAffected()
	l.logger.Info("Bulk load complete",
		zap.String("table", ident),
		zap.Int64("rowsLoaded", rows))

	return rows, nil
}

// tableIdent quotes an optionally schema-qualified table name. Identifiers
// come from configuration, not data, but they still participate in SQL text
// and get properly quoted.
func tableIdent(table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: invalid table identifier %q", pkgerrors.ErrInvalidConfig, table)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", fmt.Errorf("%w: invalid table identifier %q", pkgerrors.ErrInvalidConfig, table)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
