// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

import (
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlmodel/typeinfo"
)

type Person struct {
	ID   *int64
	Name string
	Age  int
}

func (p *Person) Fields() []Field {
	return []Field{
		{Name: "id", Type: Optional(Annotated(Integer, "PRIMARY KEY")), Ref: &p.ID},
		{Name: "name", Type: Text, Ref: &p.Name},
		{Name: "age", Type: Integer, Ref: &p.Age},
	}
}

type CallLog struct {
	Caller   string
	Started  time.Time
	Duration time.Duration
	Note     *string
}

func (c *CallLog) Fields() []Field {
	return []Field{
		{Name: "caller", Type: Annotated(Text, "UNIQUE", "COLLATE NOCASE", "UNIQUE"), Ref: &c.Caller},
		{Name: "started", Type: Timestamp, Ref: &c.Started},
		{Name: "duration", Type: Duration, Ref: &c.Duration},
		{Name: "note", Type: Annotated(Optional(Text), "DEFAULT ''"), Ref: &c.Note},
	}
}

func (c *CallLog) TableConstraints() []string {
	return []string{"CHECK (duration >= 0)"}
}

type renamed struct {
	Key string
}

func (r *renamed) Fields() []Field {
	return []Field{{Name: "key", Type: Text, Ref: &r.Key}}
}

func (r *renamed) TableName() string {
	return "settings"
}

func TestDerivePerson(t *testing.T) {
	s, err := NewDeriver(typeinfo.NewRegistry()).Derive(&Person{})
	require.NoError(t, err)

	assert.Equal(t, "person", s.Table)
	assert.Equal(t, []string{"id", "name", "age"}, s.Names())
	var defs []string
	for _, c := range s.Columns {
		defs = append(defs, c.Definition())
	}
	assert.Equal(t, []string{
		"id INTEGER PRIMARY KEY",
		"name TEXT NOT NULL",
		"age INTEGER NOT NULL",
	}, defs)

	id, ok := s.Column("id")
	require.True(t, ok)
	assert.True(t, id.Nullable)
	assert.Equal(t, typeinfo.TagInteger, id.Tag)
	assert.Equal(t, []string{"PRIMARY KEY"}, id.Constraints)

	i, ok := s.Index("age")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	assert.False(t, s.Has("email"))
}

func TestDeriveWrappersCompose(t *testing.T) {
	s, err := NewDeriver(typeinfo.NewRegistry()).Derive(&CallLog{})
	require.NoError(t, err)

	assert.Equal(t, "call_log", s.Table)
	caller, _ := s.Column("caller")
	assert.Equal(t, "caller TEXT NOT NULL UNIQUE COLLATE NOCASE", caller.Definition())
	started, _ := s.Column("started")
	assert.Equal(t, "started TEXT NOT NULL", started.Definition())
	duration, _ := s.Column("duration")
	assert.Equal(t, "duration INTEGER NOT NULL", duration.Definition())
	note, _ := s.Column("note")
	assert.Equal(t, "note TEXT DEFAULT ''", note.Definition())
	assert.Equal(t, []string{"CHECK (duration >= 0)"}, s.Constraints)
}

func TestDeriveTableNameOverride(t *testing.T) {
	s, err := NewDeriver(typeinfo.NewRegistry()).Derive(&renamed{})
	require.NoError(t, err)
	assert.Equal(t, "settings", s.Table)
}

func TestDeriveIsDeterministicAndCached(t *testing.T) {
	d := NewDeriver(typeinfo.NewRegistry())
	first, err := d.Derive(&Person{})
	require.NoError(t, err)
	second, err := d.Derive(&Person{Name: "other instance"})
	require.NoError(t, err)
	assert.Same(t, first, second)

	fresh, err := NewDeriver(typeinfo.NewRegistry()).Derive(&Person{})
	require.NoError(t, err)
	assert.Equal(t, first.Names(), fresh.Names())
	for i := range first.Columns {
		assert.Equal(t, first.Columns[i].Definition(), fresh.Columns[i].Definition())
	}
}

func TestDeriveConcurrent(t *testing.T) {
	d := NewDeriver(typeinfo.NewRegistry())
	var wg sync.WaitGroup
	results := make([]*Schema, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = d.Derive(&Person{})
		}(i)
	}
	wg.Wait()
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

type nestedAnnotation struct{ ID int64 }

func (n *nestedAnnotation) Fields() []Field {
	return []Field{{Name: "id", Type: Annotated(Annotated(Integer, "UNIQUE"), "PRIMARY KEY"), Ref: &n.ID}}
}

type optionalWithoutPointer struct{ Name string }

func (o *optionalWithoutPointer) Fields() []Field {
	return []Field{{Name: "name", Type: Optional(Text), Ref: &o.Name}}
}

type pointerWithoutOptional struct{ Name *string }

func (p *pointerWithoutOptional) Fields() []Field {
	return []Field{{Name: "name", Type: Text, Ref: &p.Name}}
}

type wrongRef struct{ Name string }

func (w *wrongRef) Fields() []Field {
	return []Field{{Name: "name", Type: Integer, Ref: &w.Name}}
}

type duplicate struct{ A, B string }

func (d *duplicate) Fields() []Field {
	return []Field{{Name: "a", Type: Text, Ref: &d.A}, {Name: "a", Type: Text, Ref: &d.B}}
}

type badName struct{ A string }

func (b *badName) Fields() []Field {
	return []Field{{Name: "a; DROP TABLE x", Type: Text, Ref: &b.A}}
}

type noFields struct{}

func (*noFields) Fields() []Field { return nil }

type untyped struct{ A string }

func (u *untyped) Fields() []Field {
	return []Field{{Name: "a", Ref: &u.A}}
}

func TestDeriveSchemaErrors(t *testing.T) {
	tests := []struct {
		summary string
		model   Model
		msg     string
	}{{
		summary: "nested annotation",
		model:   &nestedAnnotation{},
		msg:     `table "nested_annotation" field "id": type is annotated more than once: invalid model definition`,
	}, {
		summary: "optional without pointer",
		model:   &optionalWithoutPointer{},
		msg:     "optional field must refer to a pointer, got *string",
	}, {
		summary: "pointer without optional",
		model:   &pointerWithoutOptional{},
		msg:     "field refers to a pointer (**string) but is not optional",
	}, {
		summary: "ref of the wrong type",
		model:   &wrongRef{},
		msg:     "integer field cannot refer to *string",
	}, {
		summary: "duplicate field",
		model:   &duplicate{},
		msg:     `table "duplicate" has duplicate field "a"`,
	}, {
		summary: "invalid column name",
		model:   &badName{},
		msg:     "invalid column name",
	}, {
		summary: "no fields",
		model:   &noFields{},
		msg:     `table "no_fields" has no fields`,
	}, {
		summary: "missing type",
		model:   &untyped{},
		msg:     "missing type",
	}}
	for _, test := range tests {
		_, err := NewDeriver(typeinfo.NewRegistry()).Derive(test.model)
		if assert.Error(t, err, test.summary) {
			assert.True(t, errors.Is(err, ErrSchema), test.summary)
			assert.Contains(t, err.Error(), test.msg, test.summary)
		}
	}
}

type Money struct{ Cents int64 }

type invoice struct{ Total Money }

func (i *invoice) Fields() []Field {
	return []Field{{Name: "total", Type: Of("money"), Ref: &i.Total}}
}

func TestDeriveUnsupportedType(t *testing.T) {
	reg := typeinfo.NewRegistry()
	_, err := NewDeriver(reg).Derive(&invoice{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, typeinfo.ErrUnsupportedType))
	assert.Contains(t, err.Error(), `table "invoice" field "total"`)

	reg.Register(typeinfo.New("money", typeinfo.Integer, func(m Money) (driver.Value, error) {
		return m.Cents, nil
	}, func(raw any) (Money, error) {
		n, ok := raw.(int64)
		if !ok {
			return Money{}, errors.Errorf("need INTEGER, got %T", raw)
		}
		return Money{Cents: n}, nil
	}))
	s, err := NewDeriver(reg).Derive(&invoice{})
	require.NoError(t, err)
	total, _ := s.Column("total")
	assert.Equal(t, "total INTEGER NOT NULL", total.Definition())
}
