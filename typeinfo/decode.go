// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"fmt"

	"github.com/pkg/errors"
)

// DecodeError reports a column value that could not be converted back into
// the type of the field it belongs to.
type DecodeError struct {
	Table string
	Field string
	Value any
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode field %q of table %q from %#v: %s", e.Field, e.Table, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// The helpers below convert the raw values produced by database/sql. They
// accept only the representations the engine uses for each storage class
// and never coerce between classes.

func asInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	}
	return 0, errors.Errorf("need INTEGER, got %T", raw)
}

func asFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	}
	return 0, errors.Errorf("need REAL, got %T", raw)
}

func asString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	}
	return "", errors.Errorf("need TEXT, got %T", raw)
}

func asBytes(raw any) ([]byte, error) {
	if v, ok := raw.([]byte); ok {
		b := make([]byte, len(v))
		copy(b, v)
		return b, nil
	}
	return nil, errors.Errorf("need BLOB, got %T", raw)
}
