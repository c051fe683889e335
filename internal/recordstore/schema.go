package recordstore

import (
	"fmt"
	"strings"
)

// PlantsTable holds one row per saved plant.
const PlantsTable = "plants"

type column struct {
	name     string
	sqlite   string
	postgres string
}

type table struct {
	name    string
	columns []column
	// orderBy is applied to every Select; empty means unordered.
	orderBy string
}

var plantsSchema = table{
	name: PlantsTable,
	columns: []column{
		{"id", "TEXT PRIMARY KEY", "TEXT PRIMARY KEY"},
		{"user_id", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"created_at", "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP", "TIMESTAMPTZ NOT NULL DEFAULT now()"},
		{"scientific_name", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"common_name", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"wiki_description", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"care_instructions", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"family", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"genus", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"latitude", "REAL", "DOUBLE PRECISION"},
		{"longitude", "REAL", "DOUBLE PRECISION"},
		{"city", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"location_name", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"image_data", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"watering_frequency_days", "INTEGER", "INTEGER"},
		{"watering_frequency_text", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"reminder_enabled", "BOOLEAN NOT NULL DEFAULT 0", "BOOLEAN NOT NULL DEFAULT false"},
		{"notes", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
		{"reminder_notification_id", "TEXT", "TEXT"},
	},
	orderBy: "created_at DESC",
}

var tables = map[string]table{
	PlantsTable: plantsSchema,
}

const plantsIndexes = `
CREATE INDEX IF NOT EXISTS idx_plants_user ON plants(user_id);
CREATE INDEX IF NOT EXISTS idx_plants_created ON plants(created_at);
`

func (t table) has(col string) bool {
	for _, c := range t.columns {
		if c.name == col {
			return true
		}
	}
	return false
}

func (t table) names() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.name
	}
	return out
}

func (t table) ddl(d dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.name)
	for i, c := range t.columns {
		typ := c.sqlite
		if d.name == DriverPostgres {
			typ = c.postgres
		}
		fmt.Fprintf(&b, "\t%s %s", c.name, typ)
		if i < len(t.columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");\n")
	return b.String()
}

func schemaSQL(d dialect) []string {
	stmts := []string{plantsSchema.ddl(d)}
	for _, s := range strings.Split(plantsIndexes, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func lookupTable(name string) (table, error) {
	t, ok := tables[name]
	if !ok {
		return table{}, fmt.Errorf("recordstore: unknown table %q", name)
	}
	return t, nil
}

func (t table) checkColumns(cols []string) error {
	for _, c := range cols {
		if !t.has(c) {
			return fmt.Errorf("recordstore: unknown column %q in %s", c, t.name)
		}
	}
	return nil
}
