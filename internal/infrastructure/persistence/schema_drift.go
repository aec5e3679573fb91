package persistence

import (
	"errors"
	"regexp"
	"strings"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// SQLSTATE codes meaning "the statement names a column the table lacks".
// PGRST204 is what a PostgREST gateway in front of Postgres reports.
const (
	sqlStateUndefinedColumn = "42703"
	sqlStatePostgRESTColumn = "PGRST204"
)

var (
	pgColumnPattern        = regexp.MustCompile(`column "([^"]+)"`)
	postgrestColumnPattern = regexp.MustCompile(`the '([^']+)' column`)
	sqliteColumnPattern    = regexp.MustCompile(`(?:no such column|has no column named):? ([\w.]+)`)
)

// sqlStater is implemented by driver errors that expose a SQLSTATE code
type sqlStater interface {
	SQLState() string
}

// classifyWriteError turns a driver error for a write on table into a
// *billing.SchemaDriftError when the database rejected an unknown column.
// Any other error is returned unchanged.
func classifyWriteError(table string, err error) error {
	if err == nil {
		return nil
	}
	if column, ok := unknownColumn(err); ok {
		return &billing.SchemaDriftError{Table: table, Column: column, Err: err}
	}
	return err
}

// IsSchemaDriftError reports whether a raw driver error means an unknown
// column. It is used to tone down SQL logging for writes the caller retries.
func IsSchemaDriftError(err error) bool {
	_, ok := unknownColumn(err)
	return ok
}

func unknownColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != sqlStateUndefinedColumn && pgErr.Code != sqlStatePostgRESTColumn {
			return "", false
		}
		if pgErr.ColumnName != "" {
			return pgErr.ColumnName, true
		}
		return matchColumn(pgColumnPattern, pgErr.Message), true
	}

	var stater sqlStater
	if errors.As(err, &stater) {
		switch stater.SQLState() {
		case sqlStateUndefinedColumn, sqlStatePostgRESTColumn:
			if column := matchColumn(pgColumnPattern, err.Error()); column != "" {
				return column, true
			}
			return matchColumn(postgrestColumnPattern, err.Error()), true
		}
		return "", false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		msg := liteErr.Error()
		if strings.Contains(msg, "no such column") || strings.Contains(msg, "has no column named") {
			return matchColumn(sqliteColumnPattern, msg), true
		}
	}
	return "", false
}

func matchColumn(pattern *regexp.Regexp, msg string) string {
	if m := pattern.FindStringSubmatch(msg); len(m) == 2 {
		return m[1]
	}
	return ""
}
