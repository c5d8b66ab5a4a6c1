// Package table persists the lead table as a fixed-column CSV file that is
// rewritten in full on every change.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Row maps column names to cell values. Missing columns read as "".
type Row map[string]string

// Table is a CSV file with a column set fixed for the lifetime of a run.
// It has a single writer.
type Table struct {
	path    string
	columns []string
}

// New returns a Table backed by path. Columns are declared by Initialize
// or Attach before any write.
func New(path string) *Table {
	return &Table{path: path}
}

// Path returns the backing file path.
func (t *Table) Path() string { return t.path }

// Columns returns the declared column order.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// Initialize declares the column order and writes a header-only file,
// replacing any previous contents.
func (t *Table) Initialize(columns []string) error {
	if err := checkColumns(columns); err != nil {
		return err
	}
	t.columns = slices.Clone(columns)
	return t.write(nil)
}

// Attach declares the column order and loads an existing file, whose
// header must equal columns.
func (t *Table) Attach(columns []string) ([]Row, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}
	header, rows, err := t.read()
	if err != nil {
		return nil, err
	}
	if !slices.Equal(header, columns) {
		return nil, eris.Errorf("table: %s header %v does not match columns %v", t.path, header, columns)
	}
	t.columns = slices.Clone(columns)
	return rows, nil
}

// AppendAll replaces the file contents with the header plus rows.
func (t *Table) AppendAll(rows []Row) error {
	if t.columns == nil {
		return eris.New("table: columns not declared")
	}
	return t.write(rows)
}

// Upsert loads the table, applies updates to the first row whose
// keyColumn equals keyValue and rewrites the file. Columns outside the
// declared set are ignored. It reports false, without writing, when no
// row matches.
func (t *Table) Upsert(keyColumn, keyValue string, updates map[string]string) (bool, error) {
	if t.columns == nil {
		return false, eris.New("table: columns not declared")
	}
	if !slices.Contains(t.columns, keyColumn) {
		return false, eris.Errorf("table: unknown key column %q", keyColumn)
	}

	rows, err := t.Rows()
	if err != nil {
		return false, err
	}

	idx := slices.IndexFunc(rows, func(r Row) bool { return r[keyColumn] == keyValue })
	if idx < 0 {
		zap.L().Info("table: no row to update", zap.String("key", keyColumn), zap.String("value", keyValue))
		return false, nil
	}

	for col, v := range updates {
		if slices.Contains(t.columns, col) {
			rows[idx][col] = v
		}
	}

	if err := t.write(rows); err != nil {
		return false, err
	}
	return true, nil
}

// Rows loads every row of the table.
func (t *Table) Rows() ([]Row, error) {
	header, rows, err := t.read()
	if err != nil {
		return nil, err
	}
	if t.columns != nil && !slices.Equal(header, t.columns) {
		return nil, eris.Errorf("table: %s header changed underneath the run", t.path)
	}
	return rows, nil
}

// Load reads a table file without declaring columns, returning its header.
func Load(path string) ([]string, []Row, error) {
	return New(path).read()
}

func (t *Table) read() ([]string, []Row, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "table: open %s", t.path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, eris.Errorf("table: %s has no header", t.path)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "table: read header of %s", t.path)
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrapf(err, "table: read %s", t.path)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// write renders the full table and renames it over the target so readers
// never observe a partial file.
func (t *Table) write(rows []Row) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.columns); err != nil {
		return eris.Wrap(err, "table: encode header")
	}
	rec := make([]string, len(t.columns))
	for _, row := range rows {
		for i, col := range t.columns {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "table: encode row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "table: flush")
	}

	return writeAtomic(t.path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "table: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "table: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); !errors.Is(statErr, fs.ErrNotExist) {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "table: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "table: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "table: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "table: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "table: replace %s", path)
	}
	return nil
}

func checkColumns(columns []string) error {
	if len(columns) == 0 {
		return eris.New("table: no columns declared")
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c == "" {
			return eris.New("table: empty column name")
		}
		if seen[c] {
			return eris.Errorf("table: duplicate column %q", c)
		}
		seen[c] = true
	}
	return nil
}
