package recordstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/florae/internal/apperr"
)

// DriverMemory keeps rows in process memory.
const DriverMemory = "memory"

// Memory is a Store that keeps rows in process memory. Rows are lost on exit.
type Memory struct {
	mu   sync.RWMutex
	rows map[string][]Record
	now  func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string][]Record), now: time.Now}
}

func (m *Memory) Insert(_ context.Context, tableName string, rec Record) ([]Record, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	row := make(Record, len(t.columns))
	for _, c := range t.columns {
		row[c.name] = nil
	}
	for k, v := range rec {
		if !t.has(k) {
			return nil, fmt.Errorf("recordstore: unknown column %q in %s", k, t.name)
		}
		row[k] = bindValue(v)
	}
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}
	if row["created_at"] == nil {
		row["created_at"] = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows[t.name] {
		if existing["id"] == row["id"] {
			return nil, fmt.Errorf("recordstore: insert %s: %w", t.name, apperr.ErrAlreadyExists)
		}
	}
	m.rows[t.name] = append(m.rows[t.name], row)
	return []Record{clone(row, nil)}, nil
}

func (m *Memory) Update(_ context.Context, tableName string, patch, match Record) error {
	t, err := lookupTable(tableName)
	if err != nil {
		return err
	}
	if len(patch) == 0 || len(match) == 0 {
		return fmt.Errorf("recordstore: update needs patch and match: %w", apperr.ErrValidation)
	}
	if err := t.checkColumns(sortedKeys(patch)); err != nil {
		return err
	}
	if err := t.checkColumns(sortedKeys(match)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows[t.name] {
		if !matchAll(row, match) {
			continue
		}
		for k, v := range patch {
			row[k] = bindValue(v)
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("recordstore: update %s: %w", t.name, apperr.ErrNotFound)
	}
	return nil
}

func (m *Memory) Select(_ context.Context, tableName string, columns []string, filters Record) ([]Record, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		columns = t.names()
	}
	if err := t.checkColumns(columns); err != nil {
		return nil, err
	}
	if err := t.checkColumns(sortedKeys(filters)); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, row := range m.rows[t.name] {
		if matchAll(row, filters) {
			out = append(out, clone(row, columns))
		}
	}
	if t.orderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Time("created_at").After(out[j].Time("created_at"))
		})
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func matchAll(row, filters Record) bool {
	for k, want := range filters {
		if row[k] != bindValue(want) {
			return false
		}
	}
	return true
}

func clone(row Record, columns []string) Record {
	if columns == nil {
		columns = sortedKeys(row)
	}
	out := make(Record, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}
