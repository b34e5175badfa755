package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/personmod/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - call log, sequences and generated module tables
const currentSchemaVersion = 1

// tablePrefix keeps module tables apart from the call log tables.
const tablePrefix = "tbl_"

// SQLite is the durable Store backend.
type SQLite struct {
	db   *sql.DB
	def  *ir.ModuleDef
	opts options
}

var _ Store = (*SQLite)(nil)

// Open creates or opens a SQLite database at path holding the tables that
// def declares. Pragmas, the call log schema and module tables are applied
// automatically, so opening the same path repeatedly is safe.
//
// Opening a database whose stored table columns differ from def fails.
func Open(path string, def *ir.ModuleDef, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	// SQLite supports a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply pragmas")
	}

	if err := applySchema(db, def); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	return newSQLite(db, def, opts), nil
}

func newSQLite(db *sql.DB, def *ir.ModuleDef, opts []Option) *SQLite {
	return &SQLite{db: db, def: def, opts: buildOptions(opts)}
}

// DB returns the underlying sql.DB for direct queries.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin starts a transaction.
func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &sqliteTx{tx: tx, s: s}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %q", pragma)
		}
	}

	return nil
}

func applySchema(db *sql.DB, def *ir.ModuleDef) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "get user_version")
	}
	if version > currentSchemaVersion {
		return errors.Newf("database schema version %d is newer than supported version %d",
			version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "execute schema")
	}

	for i := range def.Tables {
		t := &def.Tables[i]
		if _, err := db.Exec(createTableSQL(t)); err != nil {
			return errors.Wrapf(err, "create table %s", t.Name)
		}
		if err := checkColumns(db, t); err != nil {
			return err
		}
		if err := seedSequence(db, t); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}

	return nil
}

func createTableSQL(t *ir.TableDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(tablePrefix+t.Name))
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "    %s %s NOT NULL", quoteIdent(c.Name), sqlType(c.Type))
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// checkColumns rejects a database created for a different table layout.
func checkColumns(db *sql.DB, t *ir.TableDef) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tablePrefix+t.Name)))
	if err != nil {
		return errors.Wrapf(err, "inspect table %s", t.Name)
	}
	defer rows.Close()

	var stored []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return errors.Wrapf(err, "inspect table %s", t.Name)
		}
		stored = append(stored, name)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "inspect table %s", t.Name)
	}

	declared := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		declared[i] = c.Name
	}
	if strings.Join(stored, ",") != strings.Join(declared, ",") {
		return errors.WithHint(
			errors.Newf("table %s: stored columns (%s) do not match the module definition (%s)",
				t.Name, strings.Join(stored, ", "), strings.Join(declared, ", ")),
			"use a new database file for a changed module",
		)
	}
	return nil
}

// seedSequence makes sure an auto_inc table has a sequence row that starts
// past any id already stored.
func seedSequence(db *sql.DB, t *ir.TableDef) error {
	col, ok := t.AutoInc()
	if !ok {
		return nil
	}
	// WHERE true disambiguates the upsert clause after INSERT ... SELECT.
	_, err := db.Exec(fmt.Sprintf(`
		INSERT INTO sequences (table_name, next_value)
		SELECT ?, COALESCE(MAX(%s), 0) + 1 FROM %s WHERE true
		ON CONFLICT(table_name) DO NOTHING
	`, quoteIdent(col.Name), quoteIdent(tablePrefix+t.Name)), t.Name)
	if err != nil {
		return errors.Wrapf(err, "seed sequence for %s", t.Name)
	}
	return nil
}

func sqlType(typ string) string {
	if typ == ir.TypeString {
		return "TEXT"
	}
	return "INTEGER"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// mapSQLiteError marks driver errors with the matching store sentinel.
func mapSQLiteError(err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch {
	case serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
		serr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return errors.Mark(err, ErrUniqueViolation)
	case serr.Code == sqlite3.ErrFull:
		return errors.Mark(err, ErrCapacityExceeded)
	}
	return err
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return errors.Wrapf(err, "query %s", name)
	}
	if value != expected {
		return errors.Newf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
