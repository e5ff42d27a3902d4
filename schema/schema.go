// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

import (
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/canonical/sqlmodel/internal/ident"
	"github.com/canonical/sqlmodel/typeinfo"
)

// ErrSchema is returned for malformed model definitions.
var ErrSchema = errors.New("invalid model definition")

// Column is the storage definition derived from a Field.
type Column struct {
	Name        string
	Tag         typeinfo.Tag
	Storage     typeinfo.Storage
	Nullable    bool
	Constraints []string
	Adapter     typeinfo.Adapter
}

// Definition returns the column definition used in CREATE TABLE.
func (c Column) Definition() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(" ")
	b.WriteString(c.Storage.String())
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	for _, constraint := range c.Constraints {
		b.WriteString(" ")
		b.WriteString(constraint)
	}
	return b.String()
}

// Schema is the table definition of a model type. A Schema is immutable and
// shared by every user of the model type.
type Schema struct {
	Table       string
	Columns     []Column
	Constraints []string

	index map[string]int
	typ   reflect.Type
}

// Index returns the position of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Column returns the named column.
func (s *Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// Has reports whether the table has the named column.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns the column names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Deriver derives and caches schemas using the adapters of one registry.
type Deriver struct {
	registry *typeinfo.Registry

	mutex sync.RWMutex
	cache map[reflect.Type]*Schema
	group singleflight.Group
}

// NewDeriver returns a Deriver resolving tags through registry.
func NewDeriver(registry *typeinfo.Registry) *Deriver {
	return &Deriver{
		registry: registry,
		cache:    make(map[reflect.Type]*Schema),
	}
}

// Default derives schemas with the adapters of typeinfo.Default.
var Default = NewDeriver(typeinfo.Default)

// Derive returns the schema of the model, using the Default deriver.
func Derive(m Model) (*Schema, error) {
	return Default.Derive(m)
}

// Registry returns the registry the Deriver resolves tags with.
func (d *Deriver) Registry() *typeinfo.Registry {
	return d.registry
}

// Derive returns the schema of the model type of m, generating and caching it
// as required. Only the type of m matters; a zero value is enough.
func (d *Deriver) Derive(m Model) (*Schema, error) {
	if m == nil {
		return nil, errors.Wrap(ErrSchema, "cannot derive schema from nil model")
	}
	t := reflect.TypeOf(m)

	d.mutex.RLock()
	s, ok := d.cache[t]
	d.mutex.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := d.group.Do(typeKey(t), func() (any, error) {
		s, err := d.generate(t, m)
		if err != nil {
			return nil, err
		}
		d.mutex.Lock()
		d.cache[t] = s
		d.mutex.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s = v.(*Schema)
	if s.typ != t {
		// Two distinct types share a key, e.g. local types with the same
		// name; generate without collapsing.
		return d.generate(t, m)
	}
	return s, nil
}

func typeKey(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return t.Elem().PkgPath() + "." + t.String()
	}
	return t.PkgPath() + "." + t.String()
}

// generate produces the schema of a model type.
func (d *Deriver) generate(t reflect.Type, m Model) (*Schema, error) {
	table, err := tableName(t, m)
	if err != nil {
		return nil, err
	}

	fields := m.Fields()
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrSchema, "table %q has no fields", table)
	}

	s := &Schema{
		Table: table,
		index: make(map[string]int, len(fields)),
		typ:   t,
	}
	for _, f := range fields {
		col, err := d.column(f)
		if err != nil {
			return nil, errors.Wrapf(err, "table %q field %q", table, f.Name)
		}
		if _, ok := s.index[col.Name]; ok {
			return nil, errors.Wrapf(ErrSchema, "table %q has duplicate field %q", table, col.Name)
		}
		s.index[col.Name] = len(s.Columns)
		s.Columns = append(s.Columns, col)
	}

	if tc, ok := m.(TableConstrainer); ok {
		for _, c := range tc.TableConstraints() {
			if c = strings.TrimSpace(c); c != "" {
				s.Constraints = append(s.Constraints, c)
			}
		}
	}
	return s, nil
}

// column derives a column from a field.
func (d *Deriver) column(f Field) (Column, error) {
	if !ident.Valid(f.Name) {
		return Column{}, errors.Wrap(ErrSchema, "invalid column name")
	}
	if f.Name == ident.RowID {
		return Column{}, errors.Wrap(ErrSchema, "rowid is reserved")
	}
	tag, nullable, constraints, err := unwrap(f.Type)
	if err != nil {
		return Column{}, err
	}
	adapter, err := d.registry.Resolve(tag)
	if err != nil {
		return Column{}, err
	}
	refNullable, err := adapter.Check(f.Ref)
	if err != nil {
		return Column{}, errors.Wrap(ErrSchema, err.Error())
	}
	if refNullable != nullable {
		if nullable {
			return Column{}, errors.Wrapf(ErrSchema, "optional field must refer to a pointer, got %T", f.Ref)
		}
		return Column{}, errors.Wrapf(ErrSchema, "field refers to a pointer (%T) but is not optional", f.Ref)
	}
	return Column{
		Name:        f.Name,
		Tag:         tag,
		Storage:     adapter.Storage(),
		Nullable:    nullable,
		Constraints: constraints,
		Adapter:     adapter,
	}, nil
}

// unwrap resolves a type expression to its tag. It allows any number of
// Optional wrappers but at most one Annotated wrapper.
func unwrap(t Type) (tag typeinfo.Tag, nullable bool, constraints []string, err error) {
	annotated := false
	for {
		switch e := t.(type) {
		case baseType:
			return e.tag, nullable, constraints, nil
		case optionalType:
			nullable = true
			t = e.inner
		case annotatedType:
			if annotated {
				return "", false, nil, errors.Wrap(ErrSchema, "type is annotated more than once")
			}
			annotated = true
			constraints = append([]string(nil), e.constraints...)
			t = e.inner
		case nil:
			return "", false, nil, errors.Wrap(ErrSchema, "missing type")
		default:
			return "", false, nil, errors.Wrapf(ErrSchema, "unknown type expression %T", t)
		}
	}
}

// tableName returns the table name of a model type.
func tableName(t reflect.Type, m Model) (string, error) {
	var name string
	if tn, ok := m.(TableNamer); ok {
		name = tn.TableName()
	} else {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		name = ident.SnakeCase(t.Name())
	}
	if !ident.Valid(name) {
		return "", errors.Wrapf(ErrSchema, "invalid table name %q for model %s", name, t)
	}
	return name, nil
}
