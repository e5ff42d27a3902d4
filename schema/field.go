// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

import (
	"strings"

	"github.com/canonical/sqlmodel/typeinfo"
)

// Model is implemented by pointers to types stored in a table. Fields must
// return the same names, in the same order, on every call; the Ref of each
// field points into the receiver.
type Model interface {
	Fields() []Field
}

// TableNamer overrides the table name derived from the model type name.
type TableNamer interface {
	TableName() string
}

// TableConstrainer adds table constraints, such as composite keys, to the
// derived table definition.
type TableConstrainer interface {
	TableConstraints() []string
}

// Field describes one column of a model.
type Field struct {
	// Name is the column name.
	Name string

	// Type is the type expression of the column.
	Type Type

	// Ref points at the variable holding the field value: a *T for
	// required fields and a **T for Optional ones.
	Ref any
}

// Type is a type expression. Use Of, Optional and Annotated to build one.
type Type interface {
	typeExpr()
}

type baseType struct {
	tag typeinfo.Tag
}

type optionalType struct {
	inner Type
}

type annotatedType struct {
	inner       Type
	constraints []string
}

func (baseType) typeExpr()      {}
func (optionalType) typeExpr()  {}
func (annotatedType) typeExpr() {}

// Of returns the type expression of values with the given tag.
func Of(tag typeinfo.Tag) Type {
	return baseType{tag: tag}
}

// Optional marks a type as nullable.
func Optional(t Type) Type {
	if o, ok := t.(optionalType); ok {
		return o
	}
	return optionalType{inner: t}
}

// Annotated attaches column constraints, e.g. "PRIMARY KEY" or "UNIQUE", to a
// type. Empty and repeated constraints are dropped.
func Annotated(t Type, constraints ...string) Type {
	var set []string
	seen := make(map[string]bool)
	for _, c := range constraints {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		set = append(set, c)
	}
	return annotatedType{inner: t, constraints: set}
}

var (
	Text      = Of(typeinfo.TagText)
	Integer   = Of(typeinfo.TagInteger)
	Real      = Of(typeinfo.TagReal)
	Blob      = Of(typeinfo.TagBlob)
	Boolean   = Of(typeinfo.TagBoolean)
	Timestamp = Of(typeinfo.TagTimestamp)
	Duration  = Of(typeinfo.TagDuration)
	UUID      = Of(typeinfo.TagUUID)
)
