package catalog

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk schema format:
//
//	scalars:
//	  - name: email
//	    base: str
//	tables:
//	  - name: users
//	    columns:
//	      - {name: name, type: str, required: true}
//	      - {name: email, type: email}
//
// Entries are applied in order, so link targets must come first.
type File struct {
	Scalars []ScalarDef `yaml:"scalars,omitempty"`
	Tables  []TableDef  `yaml:"tables,omitempty"`
}

// Load reads a schema file into a fresh catalog.
func Load(r io.Reader) (*Catalog, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode schema")
	}

	c := New()
	if err := c.Apply(f); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadFile(path string) (*Catalog, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open schema %s", path)
	}
	defer fd.Close()

	c, err := Load(fd)
	if err != nil {
		return nil, errors.Wrapf(err, "load schema %s", path)
	}
	return c, nil
}

// Apply defines every scalar and table of f.
func (c *Catalog) Apply(f File) error {
	for _, s := range f.Scalars {
		if err := c.DefineScalar(s); err != nil {
			return errors.Wrapf(err, "scalar %s", s.Name)
		}
	}
	for _, t := range f.Tables {
		if _, err := c.CreateTable(t); err != nil {
			return errors.Wrapf(err, "table %s", t.Name)
		}
	}
	return nil
}

// Dump renders the catalog in the same format Load reads.
func (c *Catalog) Dump() ([]byte, error) {
	f := File{Scalars: c.Scalars()}
	for _, t := range c.Tables() {
		def := TableDef{Name: t.Name}
		for _, col := range t.Columns {
			def.Columns = append(def.Columns, ColumnDef{Name: col.Name, Type: col.TypeExpr, Required: col.Required})
		}
		f.Tables = append(f.Tables, def)
	}
	f.Tables = linkOrder(f.Tables)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, errors.Wrap(err, "encode schema")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode schema")
	}
	return buf.Bytes(), nil
}

// linkOrder moves link targets ahead of the tables that reference them.
func linkOrder(defs []TableDef) []TableDef {
	byName := make(map[string]TableDef, len(defs))
	for _, d := range defs {
		byName[strings.ToLower(d.Name)] = d
	}
	done := make(map[string]bool, len(defs))
	out := make([]TableDef, 0, len(defs))

	var visit func(d TableDef)
	visit = func(d TableDef) {
		if done[d.Name] {
			return
		}
		done[d.Name] = true
		for _, col := range d.Columns {
			if target, _, ok := parseLink(col.Type); ok {
				if dep, ok := byName[strings.ToLower(target)]; ok {
					visit(dep)
				}
			}
		}
		out = append(out, d)
	}
	for _, d := range defs {
		visit(d)
	}
	return out
}
