// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package sqlmodel maps Go model types to SQLite tables. It derives a table
from a model definition, builds parameterized statements for it, runs them
and decodes the rows back into models, inside transactions that commit or
roll back as a unit.

# Models

A model is a type whose pointer lists its fields, in column order, with their
type and a pointer to the variable holding the value:

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

Optional fields are nullable and refer to a pointer variable. Annotated adds
column constraints. The table is named after the type, "person" here, unless
the model has a TableName method. No reflection over struct fields is
involved, so the field list is the whole definition.

# Tables

A Table gives typed CRUD access to the table of a model:

	db, err := sqlmodel.Open(ctx, "people.db")
	...
	people, err := sqlmodel.NewTable[Person](db)
	...
	err = people.CreateTable(ctx)
	ada, err := people.Insert(ctx, map[string]any{"name": "Ada", "age": 30})
	// *ada.ID now holds the generated id.
	older, err := people.Select(ctx, "age > :age", map[string]any{"age": 20})
	all, err := older.All()

Get, Update and Delete fail with ErrNotFound when the row does not exist.
Each write runs in a transaction of its own.

# Transactions

DB.Transaction runs a function in a transaction. It commits if the function
returns nil and rolls back if it fails or panics:

	err := db.Transaction(ctx, func(ctx context.Context, tx *sqlmodel.TX) error {
		if _, err := people.Insert(ctx, map[string]any{"name": "Bob", "age": 40}); err != nil {
			return err
		}
		_, err := people.Update(ctx, 1, map[string]any{"age": 31})
		return err
	})

Tables used with the context passed to the function run in the transaction.
Transactions do not nest.

# Statements

Statements the Table methods do not cover are built with package statement
and run with Table.Query, Table.Exec or the Query function:

	st, err := statement.Select(people.Schema()).
		Where("name LIKE ?", "A%").
		OrderBy("age DESC").
		Limit(10).
		Build()
	cur, err := people.Query(ctx, st)
	for p, err := range cur.Iter() {
		...
	}

Values are always bound as parameters and never written into the statement
text.
*/
package sqlmodel
