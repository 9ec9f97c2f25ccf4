package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// QueryParams filters, orders and pages a query.
type QueryParams struct {
	// Where is a condition without the WHERE keyword, with ? placeholders,
	// such as "Kind = ? AND Location = ?".
	Where string

	// Args fill the placeholders of Where.
	Args []any

	// Limit caps the number of rows. Zero returns all rows.
	Limit int

	// Offset skips rows. It only applies with a Limit.
	Offset int

	// OrderBy lists sort columns without the ORDER BY keywords.
	OrderBy string
}

// DataReader decodes recorded rows back into structs.
type DataReader interface {
	// MapTable tells which struct the rows of a table decode to. A table
	// must be mapped before it is queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables in alphabetical order.
	ListTables() []string

	// Query returns pointers to decoded rows, along with how many rows match
	// params.Where regardless of Limit and Offset.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	db     *sql.DB
	tables map[string]reflect.Type
}

// NewReader opens a SQLite file written by a SQLiteWriter.
func NewReader(dbFilename string) DataReader {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		panic(err)
	}

	return NewReaderWithDB(db)
}

// NewReaderWithDB reads from an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:     db,
		tables: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.tables[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// selectSQL builds the statement selecting what from a table.
func selectSQL(what, tableName string, params QueryParams, paged bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "SELECT %s FROM %s", what, tableName)

	if params.Where != "" {
		sb.WriteString(" WHERE " + params.Where)
	}

	if !paged {
		return sb.String()
	}

	if params.OrderBy != "" {
		sb.WriteString(" ORDER BY " + params.OrderBy)
	}

	if params.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", params.Limit)

		if params.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", params.Offset)
		}
	}

	return sb.String()
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	rowType, ok := r.tables[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx,
		selectSQL("COUNT(*)", tableName, params, false), params.Args...).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting rows of %s: %w", tableName, err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectSQL("*", tableName, params, true), params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := decodeRows(rows, rowType)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding %s: %w", tableName, err)
	}

	return results, total, nil
}

// decodeRows scans each row into a new struct of rowType, matching columns
// to fields by name. Columns without a field are dropped.
func decodeRows(rows *sql.Rows, rowType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any

	for rows.Next() {
		ptr := reflect.New(rowType)
		targets := make([]any, len(columns))

		for i, column := range columns {
			if f := ptr.Elem().FieldByName(column); f.IsValid() {
				targets[i] = f.Addr().Interface()
			} else {
				targets[i] = new(any)
			}
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
