// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"database/sql/driver"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// JSON returns an Adapter storing values of type T as JSON text. Register it
// under a tag of your choosing:
//
//	typeinfo.Register(typeinfo.JSON[[]string]("string_list"))
func JSON[T any](tag Tag) Adapter {
	return New(tag, Text, func(v T) (driver.Value, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot encode %s", tag)
		}
		return string(b), nil
	}, func(raw any) (T, error) {
		var v T
		s, err := asString(raw)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return v, errors.Wrapf(err, "invalid %s", tag)
		}
		return v, nil
	})
}
