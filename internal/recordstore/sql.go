package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/florae/internal/apperr"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name       string
	sqlDriver  string
	bindFormat func(n int) string
}

var (
	sqliteDialect = dialect{
		name:       DriverSQLite,
		sqlDriver:  "sqlite3",
		bindFormat: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:       DriverPostgres,
		sqlDriver:  "pgx",
		bindFormat: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// SQL is a Store backed by database/sql.
type SQL struct {
	conn *sql.DB
	d    dialect
}

var _ Store = (*SQL)(nil)

// Open connects to the named driver and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	var d dialect
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3", "":
		d = sqliteDialect
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	case DriverPostgres, "pgx":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("recordstore: unsupported driver %q", driver)
	}

	conn, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("recordstore: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recordstore: ping: %w", err)
	}
	for _, stmt := range schemaSQL(d) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("recordstore: apply schema: %w", err)
		}
	}
	return &SQL{conn: conn, d: d}, nil
}

// Driver reports the configured driver name.
func (s *SQL) Driver() string { return s.d.name }

// Ping checks the connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *SQL) Close() error {
	return s.conn.Close()
}

// Insert assigns an id (and created_at) when missing, writes the row and
// reads it back.
func (s *SQL) Insert(ctx context.Context, tableName string, rec Record) ([]Record, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	row := make(Record, len(rec)+2)
	for k, v := range rec {
		row[k] = v
	}
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}
	if _, ok := row["created_at"]; !ok && t.has("created_at") {
		row["created_at"] = time.Now().UTC()
	}

	cols := sortedKeys(row)
	if err := t.checkColumns(cols); err != nil {
		return nil, err
	}
	binds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		binds[i] = s.d.bindFormat(i + 1)
		args[i] = bindValue(row[c])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), strings.Join(binds, ", "))

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("recordstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("recordstore: insert %s: %w", t.name, err)
	}
	out, err := s.query(ctx, tx, t, nil, Record{"id": row["id"]})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("recordstore: commit: %w", err)
	}
	return out, nil
}

// Update patches every row matching match. Zero matched rows is ErrNotFound.
func (s *SQL) Update(ctx context.Context, tableName string, patch, match Record) error {
	t, err := lookupTable(tableName)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("recordstore: empty patch: %w", apperr.ErrValidation)
	}
	if len(match) == 0 {
		return fmt.Errorf("recordstore: update without match: %w", apperr.ErrValidation)
	}
	setCols := sortedKeys(patch)
	if err := t.checkColumns(setCols); err != nil {
		return err
	}

	sets := make([]string, len(setCols))
	args := make([]any, 0, len(patch)+len(match))
	for i, c := range setCols {
		args = append(args, bindValue(patch[c]))
		sets[i] = c + " = " + s.d.bindFormat(len(args))
	}
	where, whereArgs, err := s.where(t, match, len(args))
	if err != nil {
		return err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", t.name, strings.Join(sets, ", "), where)
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("recordstore: update %s: %w", t.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recordstore: update %s: %w", t.name, apperr.ErrNotFound)
	}
	return nil
}

// Select returns matching rows in the table's natural order.
func (s *SQL) Select(ctx context.Context, tableName string, columns []string, filters Record) ([]Record, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, s.conn, t, columns, filters)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQL) query(ctx context.Context, q querier, t table, columns []string, filters Record) ([]Record, error) {
	if len(columns) == 0 {
		columns = t.names()
	}
	if err := t.checkColumns(columns); err != nil {
		return nil, err
	}
	where, args, err := s.where(t, filters, 0)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(columns, ", "), t.name, where)
	if t.orderBy != "" {
		query += " ORDER BY " + t.orderBy
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recordstore: select %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("recordstore: scan %s: %w", t.name, err)
		}
		rec := make(Record, len(columns))
		for i, c := range columns {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// where renders an AND of equality filters. A nil value matches NULL.
func (s *SQL) where(t table, filters Record, offset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	cols := sortedKeys(filters)
	if err := t.checkColumns(cols); err != nil {
		return "", nil, err
	}
	conds := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		v := bindValue(filters[c])
		if v == nil {
			conds = append(conds, c+" IS NULL")
			continue
		}
		args = append(args, v)
		conds = append(conds, c+" = "+s.d.bindFormat(offset+len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// bindValue dereferences optional values so drivers see NULL or a scalar.
func bindValue(v any) any {
	switch x := v.(type) {
	case *int:
		if x == nil {
			return nil
		}
		return int64(*x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case int:
		return int64(x)
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
