// Package library is a small SQLite book library: one row per book with
// the path of its EPUB, plus ordered per-column values.
package library

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/yuanying/epubxmeta/internal/mapping"
	"github.com/yuanying/epubxmeta/internal/names"
)

var (
	ErrNotFound      = errors.New("book not found")
	ErrUnknownColumn = errors.New("unknown column")
)

var builtinColumns = []string{mapping.AuthorsColumn, mapping.TitleColumn}

// Book is one library entry. Fields holds every column value, including
// the title and authors.
type Book struct {
	ID     int64
	Path   string
	Fields mapping.Fields
}

// Title returns the book title.
func (b Book) Title() string {
	return b.Fields.First(mapping.TitleColumn)
}

// Authors returns the book authors.
func (b Book) Authors() []string {
	return b.Fields[mapping.AuthorsColumn]
}

// Info labels b for logs and failure reports.
func (b Book) Info() string {
	return fmt.Sprintf("%q (%s) {id: %d}", b.Title(), names.JoinAuthors(b.Authors()), b.ID)
}

type Library struct {
	db         *sql.DB
	addBook    *sql.Stmt
	getBook    *sql.Stmt
	listBooks  *sql.Stmt
	getValues  *sql.Stmt
	listCols   *sql.Stmt
	addCol     *sql.Stmt
	setPath    *sql.Stmt
	deleteBook *sql.Stmt
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS columns (
		name TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS book_values (
		book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		column_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (book_id, column_name, seq)
	)`,
}

// Open creates the library tables in db if needed and prepares its
// statements.
func Open(db *sql.DB) (*Library, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create library schema: %w", err)
		}
	}

	l := &Library{db: db}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&l.addBook, "INSERT INTO books (path) VALUES (?)"},
		{&l.getBook, "SELECT id, path FROM books WHERE id = ? LIMIT 1"},
		{&l.listBooks, "SELECT id, path FROM books ORDER BY id"},
		{&l.getValues, "SELECT column_name, value FROM book_values WHERE book_id = ? ORDER BY column_name, seq"},
		{&l.listCols, "SELECT name FROM columns ORDER BY name"},
		{&l.addCol, "INSERT OR IGNORE INTO columns (name) VALUES (?)"},
		{&l.setPath, "UPDATE books SET path = ? WHERE id = ?"},
		{&l.deleteBook, "DELETE FROM books WHERE id = ?"},
	}
	for _, s := range stmts {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare %q: %w", s.query, err)
		}
		*s.dst = stmt
	}
	return l, nil
}

// AddColumn declares a custom column.
func (l *Library) AddColumn(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownColumn)
	}
	if _, err := l.addCol.Exec(name); err != nil {
		return fmt.Errorf("failed to add column %s: %w", name, err)
	}
	return nil
}

// Columns returns the built-in columns followed by the custom ones.
func (l *Library) Columns() ([]string, error) {
	rows, err := l.listCols.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := append([]string(nil), builtinColumns...)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Known returns a predicate reporting whether a column exists.
func (l *Library) Known() (func(string) bool, error) {
	cols, err := l.Columns()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return func(c string) bool { return set[c] }, nil
}

// Add stores a new book and returns its id.
func (l *Library) Add(path string, fields mapping.Fields) (int64, error) {
	res, err := l.addBook.Exec(path)
	if err != nil {
		return 0, fmt.Errorf("failed to add book %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return id, nil
	}
	if err := l.Set(id, fields); err != nil {
		l.deleteBook.Exec(id)
		return 0, err
	}
	return id, nil
}

// Get returns the book with id.
func (l *Library) Get(id int64) (Book, error) {
	var b Book
	err := l.getBook.QueryRow(id).Scan(&b.ID, &b.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Book{}, err
	}
	if b.Fields, err = l.values(id); err != nil {
		return Book{}, err
	}
	return b, nil
}

// List returns every book ordered by id.
func (l *Library) List() ([]Book, error) {
	rows, err := l.listBooks.Query()
	if err != nil {
		return nil, err
	}
	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Path); err != nil {
			rows.Close()
			return nil, err
		}
		books = append(books, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range books {
		if books[i].Fields, err = l.values(books[i].ID); err != nil {
			return nil, err
		}
	}
	return books, nil
}

// SetPath changes the EPUB path of a book.
func (l *Library) SetPath(id int64, path string) error {
	res, err := l.setPath.Exec(path, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Set replaces the values of the columns present in fields. Other
// columns keep their values. An empty value list clears the column.
func (l *Library) Set(id int64, fields mapping.Fields) error {
	known, err := l.Known()
	if err != nil {
		return err
	}
	for column := range fields {
		if !known(column) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
	}

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM books WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	for column, values := range fields {
		if _, err := tx.Exec("DELETE FROM book_values WHERE book_id = ? AND column_name = ?", id, column); err != nil {
			return fmt.Errorf("failed to clear %s of book %d: %w", column, id, err)
		}
		for seq, v := range values {
			if _, err := tx.Exec("INSERT INTO book_values (book_id, column_name, seq, value) VALUES (?, ?, ?, ?)", id, column, seq, v); err != nil {
				return fmt.Errorf("failed to set %s of book %d: %w", column, id, err)
			}
		}
	}
	return tx.Commit()
}

func (l *Library) values(id int64) (mapping.Fields, error) {
	rows, err := l.getValues.Query(id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := mapping.Fields{}
	for rows.Next() {
		var column, value string
		if err := rows.Scan(&column, &value); err != nil {
			return nil, err
		}
		fields[column] = append(fields[column], value)
	}
	return fields, rows.Err()
}

// Close releases the prepared statements. The database stays open.
func (l *Library) Close() error {
	var errs []error
	for _, s := range []*sql.Stmt{l.addBook, l.getBook, l.listBooks, l.getValues, l.listCols, l.addCol, l.setPath, l.deleteBook} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	return errors.Join(errs...)
}
