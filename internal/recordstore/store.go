// Package recordstore is the generic record store behind the persistence
// gateway: three verbs (insert, update, select) over named tables.
package recordstore

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Record is one row keyed by column name.
type Record map[string]any

// Store is the uniform insert/update/select contract.
type Store interface {
	// Insert writes rec and returns the stored rows.
	Insert(ctx context.Context, table string, rec Record) ([]Record, error)
	// Update applies patch to every row matching all match columns.
	Update(ctx context.Context, table string, patch, match Record) error
	// Select returns columns of the rows matching all filters. No columns
	// means every column.
	Select(ctx context.Context, table string, columns []string, filters Record) ([]Record, error)
	Close() error
}

// String returns the column as text, or "" when absent or NULL.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	default:
		return ""
	}
}

// StringPtr returns nil for NULL or empty text.
func (r Record) StringPtr(col string) *string {
	s := r.String(col)
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns the column as an int, or nil when NULL or not numeric.
func (r Record) IntPtr(col string) *int {
	var n int
	switch v := r[col].(type) {
	case *int:
		if v == nil {
			return nil
		}
		n = *v
	case int64:
		n = int(v)
	case int32:
		n = int(v)
	case int:
		n = v
	case float64:
		n = int(v)
	case []byte:
		parsed, err := strconv.Atoi(strings.TrimSpace(string(v)))
		if err != nil {
			return nil
		}
		n = parsed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

// Float returns the column as a float64, 0 when NULL.
func (r Record) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Bool returns the column as a bool. SQLite may report integers.
func (r Record) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time returns the column as a UTC time, zero when absent.
func (r Record) Time(col string) time.Time {
	var s string
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC()
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// New opens the store named by driver: memory, sqlite or postgres.
func New(ctx context.Context, driver, dsn string) (Store, error) {
	if strings.EqualFold(strings.TrimSpace(driver), DriverMemory) {
		return NewMemory(), nil
	}
	return Open(ctx, driver, dsn)
}
