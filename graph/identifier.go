package graph

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CoerceIdentifier converts an identifier scalar to an integer. Integers
// pass through, finite floats and float strings are truncated toward zero.
// Booleans, null and non-numeric strings fail with ErrInvalidIdentifier.
func CoerceIdentifier(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return fromUint(t)
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case json.Number:
		return fromString(t.String())
	case string:
		return fromString(t)
	}
	return 0, ErrInvalidIdentifier
}

func fromUint(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, ErrInvalidIdentifier
	}
	return int64(u), nil
}

func fromFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, ErrInvalidIdentifier
	}
	return int64(f), nil
}

func fromString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidIdentifier
	}
	return fromFloat(f)
}
