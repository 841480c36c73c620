package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"stashdb/auth"
	"stashdb/metrics"
)

// RowError records one CSV row that could not be imported.
type RowError struct {
	Line int
	Key  string
	Err  error
}

// ImportReport summarizes a CSV import: how many rows became entries and
// which rows failed. Row failures never abort the batch.
type ImportReport struct {
	Imported int
	Failed   []RowError
}

// ImportCSV reads a two-column key,value file and performs one Create per
// row. A row that fails (duplicate key, malformed value) is reported in the
// returned ImportReport and the remaining rows proceed. Outside a
// transaction the whole import is flushed once at the end; inside one, rows
// are staged like any other create. Admin-only.
func (e *Engine) ImportCSV(ctx auth.Context, path string) (ImportReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := auth.Check(ctx, "import_csv"); err != nil {
		return ImportReport{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return ImportReport{}, fmt.Errorf("open CSV file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return ImportReport{}, &ValidationError{Reason: "CSV file is empty or unreadable"}
	}
	keyCol, valCol := -1, -1
	for i, name := range header {
		switch name {
		case "key":
			keyCol = i
		case "value":
			valCol = i
		}
	}
	if keyCol < 0 || valCol < 0 {
		return ImportReport{}, &ValidationError{Reason: "CSV must have key and value columns"}
	}

	var report ImportReport
	backup := e.store.snapshot()
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			report.Failed = append(report.Failed, RowError{Line: line, Err: err})
			continue
		}
		key := record[keyCol]
		if err := e.importRow(key, record[valCol]); err != nil {
			report.Failed = append(report.Failed, RowError{Line: line, Key: key, Err: err})
			continue
		}
		report.Imported++
	}

	if e.txn == nil && report.Imported > 0 {
		if err := e.flush(); err != nil {
			e.store = newStore(backup)
			e.indexes.rebuild(e.store)
			return ImportReport{}, err
		}
	}
	metrics.Operations.WithLabelValues("import_csv").Inc()
	metrics.Keys.Set(float64(e.store.len()))
	return report, nil
}

// importRow creates one entry without flushing; the import flushes once for
// the whole batch.
func (e *Engine) importRow(key, raw string) error {
	v, err := parseEntry(key, raw)
	if err != nil {
		return err
	}
	if e.txn != nil {
		return e.txn.stageCreate(e.store, key, v)
	}
	if e.store.has(key) {
		return &DuplicateKeyError{Key: key}
	}
	e.store.put(key, v)
	e.indexes.insert(key, v)
	return nil
}

// ExportCSV writes every live entry as a key,value row, values in their
// serialized form, keys sorted. Admin-only. Returns the row count.
func (e *Engine) ExportCSV(ctx auth.Context, path string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := auth.Check(ctx, "export_csv"); err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"key", "value"}); err != nil {
		return 0, fmt.Errorf("write CSV header: %w", err)
	}
	count := 0
	for _, key := range e.store.keys() {
		v, _ := e.store.get(key)
		if err := w.Write([]string{key, v.String()}); err != nil {
			return count, fmt.Errorf("write CSV row: %w", err)
		}
		count++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return count, fmt.Errorf("flush CSV: %w", err)
	}
	metrics.Operations.WithLabelValues("export_csv").Inc()
	return count, nil
}
