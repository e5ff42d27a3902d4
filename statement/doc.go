// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package statement builds parameterized SQL statements for tables described by
a schema.Schema.

Each statement kind has its own builder. Builder methods modify the builder
and return it so calls can be chained; the first error is remembered and
returned by Build. Build does not change the builder and may be called any
number of times.

	st, err := statement.Select(s).
		Where("age > :age", map[string]any{"age": 20}).
		OrderBy("name", "age DESC").
		Limit(10).
		Build()

Only identifiers checked against the schema, SQL keywords, placeholders and
predicates written by the caller appear in the statement text. Values are
always passed in Statement.Args, either positionally for "?" placeholders or
as sql.NamedArg for ":name" placeholders. A statement never mixes the two.

Values given for schema columns are encoded with the column adapter, so a
time.Time bound to a timestamp column is stored exactly as it would be on
insert.
*/
package statement
