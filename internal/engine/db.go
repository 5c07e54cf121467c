package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novaproto/internal/catalog"
	"github.com/tuannm99/novaproto/internal/record"
)

var (
	ErrDatabaseClosed = errors.New("novasql: database is closed")
	ErrStaleTable     = errors.New("novasql: table changed since the statement was planned")
	ErrDanglingLink   = errors.New("novasql: link target does not exist")
	ErrDuplicateID    = errors.New("novasql: duplicate object id")
)

// Predicate selects stored rows; a nil Predicate selects every row.
type Predicate func(row []any) bool

type DatabaseOperation interface {
	CreateScalar(def catalog.ScalarDef) error
	CreateTable(def catalog.TableDef) (*catalog.Table, error)
	DropTable(name string) error
	Insert(tbl *catalog.Table, values []any) (uuid.UUID, error)
	Select(tbl *catalog.Table, pred Predicate, projection []int) ([][]any, error)
	Update(tbl *catalog.Table, pred Predicate, sets map[int]any) (int, error)
	Delete(tbl *catalog.Table, pred Predicate) (int, error)
	Close() error
}

var _ DatabaseOperation = (*Database)(nil)

// heapTable holds the rows of one table encoded with its storage shape.
type heapTable struct {
	meta      *catalog.Table
	rows      [][]byte
	byID      map[uuid.UUID]int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newHeapTable(meta *catalog.Table) *heapTable {
	now := time.Now()
	return &heapTable{meta: meta, byID: make(map[uuid.UUID]int), CreatedAt: now, UpdatedAt: now}
}

func (h *heapTable) reindex() {
	h.byID = make(map[uuid.UUID]int, len(h.rows))
	for i, raw := range h.rows {
		row, err := record.DecodeRow(h.meta.StorageShape(), raw)
		if err == nil {
			h.byID[row[0].(uuid.UUID)] = i
		}
	}
}

// Database is the in-memory store shared by every session. Rows are kept
// in the binary row format, so every write goes through the codec.
type Database struct {
	mu     sync.RWMutex
	cat    *catalog.Catalog
	tables map[string]*heapTable
	closed bool
	log    *slog.Logger
}

// NewDatabase wraps a catalog, creating empty storage for the tables it
// already declares.
func NewDatabase(cat *catalog.Catalog, logger *slog.Logger) *Database {
	if cat == nil {
		cat = catalog.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	db := &Database{cat: cat, tables: make(map[string]*heapTable), log: logger}
	for _, t := range cat.Tables() {
		db.tables[strings.ToLower(t.Name)] = newHeapTable(t)
	}
	return db
}

func (db *Database) Catalog() *catalog.Catalog { return db.cat }

func (db *Database) CreateScalar(def catalog.ScalarDef) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	if err := db.cat.DefineScalar(def); err != nil {
		return err
	}
	db.log.Info("create scalar", "name", def.Name, "base", def.Base, "generation", db.cat.Generation())
	return nil
}

func (db *Database) CreateTable(def catalog.TableDef) (*catalog.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}

	tbl, err := db.cat.CreateTable(def)
	if err != nil {
		return nil, err
	}
	db.tables[strings.ToLower(tbl.Name)] = newHeapTable(tbl)
	db.log.Info("create table", "table", tbl.Name, "type", tbl.Shape().String(), "generation", db.cat.Generation())
	return tbl, nil
}

func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}

	if err := db.cat.DropTable(name); err != nil {
		return err
	}
	key := strings.ToLower(name)
	rows := len(db.tables[key].rows)
	delete(db.tables, key)
	db.log.Info("drop table", "table", name, "rows", rows, "generation", db.cat.Generation())
	return nil
}

// heap returns the storage for tbl, checking that tbl is still the live
// definition. Callers hold db.mu.
func (db *Database) heap(tbl *catalog.Table) (*heapTable, error) {
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	h, ok := db.tables[strings.ToLower(tbl.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrTableNotFound, tbl.Name)
	}
	if h.meta != tbl {
		return nil, fmt.Errorf("%w: %s", ErrStaleTable, tbl.Name)
	}
	return h, nil
}

// Insert stores one row given in storage-shape order. A nil identity is
// replaced by a fresh random uuid.
func (db *Database) Insert(tbl *catalog.Table, values []any) (uuid.UUID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.heap(tbl)
	if err != nil {
		return uuid.Nil, err
	}
	if len(values) != len(tbl.StorageShape().Fields) {
		return uuid.Nil, fmt.Errorf("%w: %d values for %d fields", record.ErrSchemaMismatch, len(values), len(tbl.StorageShape().Fields))
	}

	row := append([]any(nil), values...)
	if row[0] == nil {
		row[0] = uuid.New()
	}
	id, ok := row[0].(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: identity must be a uuid, got %T", record.ErrSchemaMismatch, row[0])
	}
	if _, dup := h.byID[id]; dup {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if err := db.checkLinks(tbl, row); err != nil {
		return uuid.Nil, err
	}

	raw, err := record.EncodeRow(tbl.StorageShape(), row)
	if err != nil {
		return uuid.Nil, err
	}
	h.byID[id] = len(h.rows)
	h.rows = append(h.rows, raw)
	h.UpdatedAt = time.Now()
	return id, nil
}

func (db *Database) checkLinks(tbl *catalog.Table, row []any) error {
	for i, col := range tbl.Columns {
		if col.Link == "" || row[i+1] == nil {
			continue
		}
		target := db.tables[strings.ToLower(col.Link)]
		ids := []any{row[i+1]}
		if col.Multi {
			list, ok := row[i+1].([]any)
			if !ok {
				return fmt.Errorf("%w: %s.%s holds %T", record.ErrSchemaMismatch, tbl.Name, col.Name, row[i+1])
			}
			ids = list
		}
		for _, v := range ids {
			id, ok := v.(uuid.UUID)
			if !ok {
				return fmt.Errorf("%w: %s.%s holds %T", record.ErrSchemaMismatch, tbl.Name, col.Name, v)
			}
			if _, ok := target.byID[id]; !ok {
				return fmt.Errorf("%w: %s.%s -> %s %s", ErrDanglingLink, tbl.Name, col.Name, col.Link, id)
			}
		}
	}
	return nil
}

// Scan calls fn with every stored row matching pred, in insertion order.
func (db *Database) Scan(tbl *catalog.Table, pred Predicate, fn func(row []any) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	h, err := db.heap(tbl)
	if err != nil {
		return err
	}
	return db.scan(h, pred, func(_ int, row []any) error { return fn(row) })
}

func (db *Database) scan(h *heapTable, pred Predicate, fn func(i int, row []any) error) error {
	for i, raw := range h.rows {
		row, err := record.DecodeRow(h.meta.StorageShape(), raw)
		if err != nil {
			return fmt.Errorf("table %s row %d: %w", h.meta.Name, i, err)
		}
		if pred != nil && !pred(row) {
			continue
		}
		if err := fn(i, row); err != nil {
			return err
		}
	}
	return nil
}

// Select returns the matching rows in the table's public shape, with links
// expanded to the linked objects, projected to the given field indexes.
func (db *Database) Select(tbl *catalog.Table, pred Predicate, projection []int) ([][]any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	h, err := db.heap(tbl)
	if err != nil {
		return nil, err
	}
	var out [][]any
	err = db.scan(h, pred, func(_ int, row []any) error {
		full, err := db.materialize(tbl, row)
		if err != nil {
			return err
		}
		proj := make([]any, len(projection))
		for i, idx := range projection {
			proj[i] = full[idx]
		}
		out = append(out, proj)
		return nil
	})
	return out, err
}

// materialize replaces link ids by the linked rows. Links only point at
// tables created earlier, so the recursion ends.
func (db *Database) materialize(tbl *catalog.Table, row []any) ([]any, error) {
	out := append([]any(nil), row...)
	for i, col := range tbl.Columns {
		if col.Link == "" || row[i+1] == nil {
			continue
		}
		target := db.tables[strings.ToLower(col.Link)]

		if !col.Multi {
			obj, err := db.lookup(target, row[i+1].(uuid.UUID))
			if err != nil {
				return nil, err
			}
			// a deleted target reads as null
			out[i+1] = obj
			continue
		}

		var objs []any
		for _, id := range row[i+1].([]any) {
			obj, err := db.lookup(target, id.(uuid.UUID))
			if err != nil {
				return nil, err
			}
			if obj != nil {
				objs = append(objs, obj)
			}
		}
		if objs == nil {
			objs = []any{}
		}
		out[i+1] = objs
	}
	return out, nil
}

func (db *Database) lookup(h *heapTable, id uuid.UUID) (any, error) {
	pos, ok := h.byID[id]
	if !ok {
		return nil, nil
	}
	row, err := record.DecodeRow(h.meta.StorageShape(), h.rows[pos])
	if err != nil {
		return nil, err
	}
	obj, err := db.materialize(h.meta, row)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Update assigns sets (storage field index -> value) on every matching row
// and returns the number of rows changed.
func (db *Database) Update(tbl *catalog.Table, pred Predicate, sets map[int]any) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.heap(tbl)
	if err != nil {
		return 0, err
	}

	type change struct {
		pos int
		raw []byte
	}
	var changes []change
	err = db.scan(h, pred, func(i int, row []any) error {
		for idx, v := range sets {
			if idx <= 0 || idx >= len(row) {
				return fmt.Errorf("%w: field index %d", record.ErrSchemaMismatch, idx)
			}
			row[idx] = v
		}
		if err := db.checkLinks(tbl, row); err != nil {
			return err
		}
		raw, err := record.EncodeRow(tbl.StorageShape(), row)
		if err != nil {
			return err
		}
		changes = append(changes, change{pos: i, raw: raw})
		return nil
	})
	if err != nil {
		return 0, err
	}

	// apply only once every row encoded
	for _, c := range changes {
		h.rows[c.pos] = c.raw
	}
	if len(changes) > 0 {
		h.UpdatedAt = time.Now()
	}
	return len(changes), nil
}

// Delete removes every matching row and returns how many were removed.
func (db *Database) Delete(tbl *catalog.Table, pred Predicate) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.heap(tbl)
	if err != nil {
		return 0, err
	}

	keep := h.rows[:0:0]
	removed := 0
	err = db.scan(h, nil, func(i int, row []any) error {
		if pred == nil || pred(row) {
			removed++
			return nil
		}
		keep = append(keep, h.rows[i])
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		h.rows = keep
		h.reindex()
		h.UpdatedAt = time.Now()
	}
	return removed, nil
}

// RowCount returns the number of stored rows of a table.
func (db *Database) RowCount(tbl *catalog.Table) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	h, err := db.heap(tbl)
	if err != nil {
		return 0, err
	}
	return len(h.rows), nil
}

func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	db.closed = true
	db.tables = nil
	return nil
}
