// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"database/sql/driver"
	"fmt"

	"github.com/pkg/errors"
)

// Storage is one of the native SQLite storage classes a column is declared
// with.
type Storage int

const (
	Text Storage = iota + 1
	Integer
	Real
	Blob
)

// String returns the SQL type name used in column definitions.
func (s Storage) String() string {
	switch s {
	case Text:
		return "TEXT"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Blob:
		return "BLOB"
	}
	return fmt.Sprintf("Storage(%d)", int(s))
}

// Tag identifies a logical value type. Fields declare a tag and the registry
// resolves it to the Adapter that stores values of that type.
type Tag string

const (
	TagText      Tag = "text"
	TagInteger   Tag = "integer"
	TagReal      Tag = "real"
	TagBlob      Tag = "blob"
	TagBoolean   Tag = "boolean"
	TagTimestamp Tag = "timestamp"
	TagDuration  Tag = "duration"
	TagUUID      Tag = "uuid"
)

// Adapter converts between Go values and the values stored by the engine.
type Adapter interface {
	// Tag is the logical type the adapter is registered under.
	Tag() Tag

	// Storage is the storage class of columns holding this type.
	Storage() Storage

	// Check validates that ref points to a variable the adapter can read and
	// write. It reports whether the variable is nullable, which is the case
	// when ref is a pointer to a pointer.
	Check(ref any) (nullable bool, err error)

	// Encode converts a Go value, a pointer to one (such as a field Ref),
	// or nil into a value that can be passed as a statement argument.
	Encode(v any) (driver.Value, error)

	// Decode converts a raw column value into the variable dest points to.
	// NULL is only accepted for nullable destinations.
	Decode(raw any, dest any) error
}

// holder is implemented by adapters that can tell whether they accept a value
// without attempting to encode it.
type holder interface {
	holds(v any) bool
}

// codec is an Adapter for a single Go type T.
type codec[T any] struct {
	tag     Tag
	storage Storage
	encode  func(T) (driver.Value, error)
	decode  func(raw any) (T, error)
}

// New returns an Adapter for values of type T. Fields using it must refer to
// a T, or to a *T when they are optional.
func New[T any](tag Tag, storage Storage, encode func(T) (driver.Value, error), decode func(raw any) (T, error)) Adapter {
	return &codec[T]{tag: tag, storage: storage, encode: encode, decode: decode}
}

func (c *codec[T]) Tag() Tag {
	return c.tag
}

func (c *codec[T]) Storage() Storage {
	return c.storage
}

func (c *codec[T]) typeName() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (c *codec[T]) Check(ref any) (bool, error) {
	switch r := ref.(type) {
	case *T:
		if r != nil {
			return false, nil
		}
	case **T:
		if r != nil {
			return true, nil
		}
	}
	return false, errors.Errorf("%s field needs *%s or **%s, got %T", c.tag, c.typeName(), c.typeName(), ref)
}

func (c *codec[T]) holds(v any) bool {
	switch v.(type) {
	case T, *T, **T:
		return true
	}
	return false
}

func (c *codec[T]) Encode(v any) (driver.Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case T:
		return c.encode(x)
	case *T:
		if x == nil {
			return nil, nil
		}
		return c.encode(*x)
	case **T:
		if x == nil || *x == nil {
			return nil, nil
		}
		return c.encode(**x)
	}
	return nil, errors.Errorf("cannot encode %T as %s, need %s", v, c.tag, c.typeName())
}

func (c *codec[T]) Decode(raw any, dest any) error {
	switch d := dest.(type) {
	case *T:
		if raw == nil {
			return errors.Errorf("NULL for non-optional %s", c.tag)
		}
		v, err := c.decode(raw)
		if err != nil {
			return err
		}
		*d = v
		return nil
	case **T:
		if raw == nil {
			*d = nil
			return nil
		}
		v, err := c.decode(raw)
		if err != nil {
			return err
		}
		*d = &v
		return nil
	}
	return errors.Errorf("cannot decode %s into %T", c.tag, dest)
}

// family groups adapters for several Go types that share one tag, such as
// the different widths of integers.
type family struct {
	tag     Tag
	storage Storage
	members []Adapter
}

// Family returns an Adapter that dispatches to the first member accepting
// the variable or value it is given.
func Family(tag Tag, storage Storage, members ...Adapter) Adapter {
	return &family{tag: tag, storage: storage, members: members}
}

func (f *family) Tag() Tag {
	return f.tag
}

func (f *family) Storage() Storage {
	return f.storage
}

func (f *family) Check(ref any) (bool, error) {
	for _, m := range f.members {
		if nullable, err := m.Check(ref); err == nil {
			return nullable, nil
		}
	}
	return false, errors.Errorf("%s field cannot refer to %T", f.tag, ref)
}

func (f *family) Encode(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	for _, m := range f.members {
		if h, ok := m.(holder); ok && h.holds(v) {
			return m.Encode(v)
		}
	}
	return nil, errors.Errorf("cannot encode %T as %s", v, f.tag)
}

func (f *family) Decode(raw any, dest any) error {
	for _, m := range f.members {
		if _, err := m.Check(dest); err == nil {
			return m.Decode(raw, dest)
		}
	}
	return errors.Errorf("cannot decode %s into %T", f.tag, dest)
}
