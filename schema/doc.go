// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package schema derives table definitions from model types.

A model is a pointer type that lists its own fields, in column order, by
implementing [Model]. Each [Field] names the column, gives a type expression
and points at the variable holding the value:

	type Person struct {
		ID   *int64
		Name string
		Age  int
	}

	func (p *Person) Fields() []schema.Field {
		return []schema.Field{
			{Name: "id", Type: schema.Optional(schema.Annotated(schema.Integer, "PRIMARY KEY")), Ref: &p.ID},
			{Name: "name", Type: schema.Text, Ref: &p.Name},
			{Name: "age", Type: schema.Integer, Ref: &p.Age},
		}
	}

Type expressions are built from a tag resolved through a typeinfo.Registry
([Of]), the optional wrapper ([Optional]), which drops the NOT NULL
requirement and makes the field refer to a pointer, and the annotation wrapper
([Annotated]), whose constraint strings are appended verbatim to the column
definition. The two wrappers compose, but a type may only be annotated once.

The model above derives the table

	CREATE TABLE person(id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER NOT NULL)

The table name is the snake case form of the type name unless the model
implements [TableNamer].
*/
package schema
