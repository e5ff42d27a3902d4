// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statement

import (
	"strings"

	"github.com/canonical/sqlmodel/schema"
)

// CreateBuilder builds CREATE TABLE statements.
type CreateBuilder struct {
	schema       *schema.Schema
	ifNotExists  bool
	strict       bool
	withoutRowID bool
	constraints  []string
	err          error
}

// Create starts a CREATE TABLE for the schema.
func Create(s *schema.Schema) *CreateBuilder {
	return &CreateBuilder{schema: s}
}

// IfNotExists makes the statement a no-op when the table exists.
func (cb *CreateBuilder) IfNotExists() *CreateBuilder {
	cb.ifNotExists = true
	return cb
}

// Strict adds the STRICT table option.
func (cb *CreateBuilder) Strict() *CreateBuilder {
	cb.strict = true
	return cb
}

// WithoutRowID adds the WITHOUT ROWID table option.
func (cb *CreateBuilder) WithoutRowID() *CreateBuilder {
	cb.withoutRowID = true
	return cb
}

// Constraint adds a table constraint after those of the schema.
func (cb *CreateBuilder) Constraint(c string) *CreateBuilder {
	c = strings.TrimSpace(c)
	if c == "" {
		if cb.err == nil {
			cb.err = builderError(cb.schema.Table, "empty table constraint")
		}
		return cb
	}
	cb.constraints = append(cb.constraints, c)
	return cb
}

// Build finalizes the statement.
func (cb *CreateBuilder) Build() (*Statement, error) {
	if cb.err != nil {
		return nil, cb.err
	}
	defs := make([]string, 0, len(cb.schema.Columns)+len(cb.schema.Constraints)+len(cb.constraints))
	for _, col := range cb.schema.Columns {
		defs = append(defs, col.Definition())
	}
	defs = append(defs, cb.schema.Constraints...)
	defs = append(defs, cb.constraints...)

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if cb.ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(cb.schema.Table)
	b.WriteString("(")
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")

	var options []string
	if cb.strict {
		options = append(options, "STRICT")
	}
	if cb.withoutRowID {
		options = append(options, "WITHOUT ROWID")
	}
	if len(options) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(options, ", "))
	}

	return &Statement{
		Kind:  KindCreate,
		Table: cb.schema.Table,
		SQL:   b.String(),
	}, nil
}
