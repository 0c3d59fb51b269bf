package migrations

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclaredMigrationsAreOrderedAndUnique(t *testing.T) {
	declared := Declared()
	require.NotEmpty(t, declared)

	ids := make([]string, 0, len(declared))
	seen := make(map[string]struct{})
	for _, m := range declared {
		assert.Equal(t, "chatify", m.Module)
		assert.NotEmpty(t, m.Statements)

		key := m.Module + "/" + m.ID
		_, dup := seen[key]
		assert.False(t, dup, "duplicate migration id %s", key)
		seen[key] = struct{}{}
		ids = append(ids, m.ID)
	}

	assert.True(t, sort.StringsAreSorted(ids), "declaration order must match lexical order")
}

func TestDeclaredStatementsAreIdempotent(t *testing.T) {
	for _, m := range Declared() {
		for _, stmt := range m.Statements {
			assert.Contains(t, stmt, "IF NOT EXISTS", "%s/%s must be re-runnable", m.Module, m.ID)
		}
	}
}

func TestChatMessagesMigrationShape(t *testing.T) {
	stmt := Declared()[0].Statements[0]
	assert.Contains(t, stmt, "PRIMARY KEY ((scope_id), created_at_utc, message_id)")
	assert.Contains(t, stmt, "CLUSTERING ORDER BY (created_at_utc ASC, message_id ASC)")
	assert.Contains(t, stmt, "SizeTieredCompactionStrategy")
}

func TestPendingFiltersApplied(t *testing.T) {
	declared := []Migration{
		{Module: "chatify", ID: "001_a"},
		{Module: "chatify", ID: "002_b"},
		{Module: "chatify", ID: "003_c"},
	}

	todo := Pending(declared, map[string]struct{}{
		"chatify/001_a": {},
		"chatify/003_c": {},
	})

	require.Len(t, todo, 1)
	assert.Equal(t, "002_b", todo[0].ID)
}

func TestPendingWithNothingApplied(t *testing.T) {
	declared := Declared()
	todo := Pending(declared, map[string]struct{}{})
	assert.Equal(t, declared, todo)
}

func TestPendingWithEverythingApplied(t *testing.T) {
	applied := make(map[string]struct{})
	for _, m := range Declared() {
		applied[m.Module+"/"+m.ID] = struct{}{}
	}
	assert.Empty(t, Pending(Declared(), applied))
}

func TestPendingIgnoresForeignModules(t *testing.T) {
	declared := []Migration{{Module: "chatify", ID: "001_a"}}
	todo := Pending(declared, map[string]struct{}{"other/001_a": {}})
	require.Len(t, todo, 1)
}

func TestStatementTemplatesTakeOneKeyspaceArgument(t *testing.T) {
	for _, m := range Declared() {
		for _, stmt := range m.Statements {
			assert.True(t, strings.Contains(stmt, "%[1]s") || !strings.Contains(stmt, "%"),
				"statement templates format only the keyspace")
		}
	}
}
