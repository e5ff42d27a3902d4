// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"database/sql/driver"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func builtins() []Adapter {
	return []Adapter{
		New(TagText, Text, encodeString, asString),
		Family(TagInteger, Integer,
			New(TagInteger, Integer, func(v int64) (driver.Value, error) { return v, nil }, asInt64),
			New(TagInteger, Integer, func(v int) (driver.Value, error) { return int64(v), nil }, decodeInt),
			New(TagInteger, Integer, func(v int32) (driver.Value, error) { return int64(v), nil }, decodeInt32),
		),
		Family(TagReal, Real,
			New(TagReal, Real, func(v float64) (driver.Value, error) { return v, nil }, asFloat64),
			New(TagReal, Real, func(v float32) (driver.Value, error) { return float64(v), nil }, decodeFloat32),
		),
		New(TagBlob, Blob, func(v []byte) (driver.Value, error) { return v, nil }, asBytes),
		New(TagBoolean, Integer, encodeBool, decodeBool),
		New(TagTimestamp, Text, encodeTime, decodeTime),
		New(TagDuration, Integer, func(v time.Duration) (driver.Value, error) { return int64(v), nil }, decodeDuration),
		New(TagUUID, Text, func(v uuid.UUID) (driver.Value, error) { return v.String(), nil }, decodeUUID),
	}
}

func encodeString(v string) (driver.Value, error) {
	return v, nil
}

func decodeInt(raw any) (int, error) {
	n, err := asInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt || n > math.MaxInt {
		return 0, errors.Errorf("integer %d overflows int", n)
	}
	return int(n), nil
}

func decodeInt32(raw any) (int32, error) {
	n, err := asInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, errors.Errorf("integer %d overflows int32", n)
	}
	return int32(n), nil
}

func decodeFloat32(raw any) (float32, error) {
	f, err := asFloat64(raw)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

func encodeBool(v bool) (driver.Value, error) {
	if v {
		return int64(1), nil
	}
	return int64(0), nil
}

func decodeBool(raw any) (bool, error) {
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	n, err := asInt64(raw)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Errorf("boolean must be 0 or 1, got %d", n)
}

// Timestamps are stored as RFC 3339 text in UTC so that they sort and compare
// correctly inside the engine.
func encodeTime(v time.Time) (driver.Value, error) {
	return v.UTC().Format(time.RFC3339Nano), nil
}

func decodeTime(raw any) (time.Time, error) {
	if t, ok := raw.(time.Time); ok {
		return t.UTC(), nil
	}
	s, err := asString(raw)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// Durations are stored as integer nanoseconds.
func decodeDuration(raw any) (time.Duration, error) {
	n, err := asInt64(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(n), nil
}

func decodeUUID(raw any) (uuid.UUID, error) {
	s, err := asString(raw)
	if err != nil {
		return uuid.Nil, err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Errorf("invalid uuid %q", s)
	}
	return u, nil
}
