package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Pool is the subset of *pgxpool.Pool used by this package. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Column is a column definition for EnsureTable.
type Column struct {
	Name string
	Type string
}

// TableSpec describes a table. GeomType is a PostGIS geometry type such as
// MultiPolygon; an empty GeomType omits the geometry column. Without a
// PrimaryKey an integer "fid" key column is added.
type TableSpec struct {
	Schema     string
	Table      string
	Columns    []Column
	PrimaryKey []string
	GeomType   string
	SRID       int
	Replace    bool
}

// GeomColumn is the geometry column name created by EnsureTable.
const GeomColumn = "geom"

// EnsureTable creates the schema and table described by spec. With Replace
// set an existing table is dropped first.
func EnsureTable(ctx context.Context, pool Pool, spec TableSpec) error {
	if spec.Table == "" {
		return eris.New("db: ensure table: no table name")
	}
	for _, stmt := range tableDDL(spec) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "db: ensure table %s", qualified(spec.Schema, spec.Table))
		}
	}
	return nil
}

func tableDDL(spec TableSpec) []string {
	var stmts []string
	if spec.Schema != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{spec.Schema}.Sanitize())
	}
	name := qualified(spec.Schema, spec.Table)
	if spec.Replace {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+name)
	}

	var defs []string
	if len(spec.PrimaryKey) == 0 {
		defs = append(defs, `"fid" integer PRIMARY KEY`)
	}
	for _, c := range spec.Columns {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+c.Type)
	}
	if spec.GeomType != "" {
		defs = append(defs, fmt.Sprintf("%s geometry(%s, %d)", pgx.Identifier{GeomColumn}.Sanitize(), spec.GeomType, spec.SRID))
	}
	if len(spec.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteAndJoin(spec.PrimaryKey)+")")
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(defs, ", ")))
	if spec.GeomType != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (%s)",
			pgx.Identifier{spec.Table + "_geom_idx"}.Sanitize(), name, pgx.Identifier{GeomColumn}.Sanitize()))
	}
	return stmts
}

func qualified(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}
