package postgresengine

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for the default table layout. Deployments with
// custom table names adjust the statements themselves.
func Schema() string {
	return schemaSQL
}
