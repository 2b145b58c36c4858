package postgresengine

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The column constants and the embedded DDL must agree, otherwise every
// statement the engine builds fails against the schema that Schema() exports.
func Test_Schema_DefinesEveryColumnTheEngineUses(t *testing.T) {
	columnsByTable := map[string][]string{
		"books":        {colID, colTitle, colISBN10, colISBN13, colEAN, colTotalCopies, colAvailableCopies, colDeletedAt},
		"copies":       {colID, colBookID, colInventoryCode, colState, colNote},
		"loans":        {colID, colBookID, colUserID, colCopyID, colStartDate, colEndDate, colState, colActive, colPickupDeadline, colNotes},
		"reservations": {colID, colBookID, colUserID, colStartDate, colEndDate, colPosition, colState},
		"settings":     {colKey, colValue},
	}

	for table, columns := range columnsByTable {
		tableDDL := tableDefinition(t, table)

		for _, column := range columns {
			pattern := regexp.MustCompile(fmt.Sprintf(`(?m)^\s*%s\s`, regexp.QuoteMeta(column)))
			assert.True(t, pattern.MatchString(tableDDL),
				"schema.sql table %q does not define column %q", table, column)
		}
	}
}

func tableDefinition(t *testing.T, table string) string {
	t.Helper()

	pattern := regexp.MustCompile(fmt.Sprintf(`(?s)CREATE TABLE IF NOT EXISTS %s \((.*?)\n\);`, regexp.QuoteMeta(table)))

	match := pattern.FindStringSubmatch(schemaSQL)
	if match == nil {
		t.Fatalf("schema.sql does not create table %q", table)
	}

	return match[1]
}
