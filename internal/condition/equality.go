package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Equality decides whether two form values are equal.
type Equality func(a, b any) bool

// LooseEqual compares the way form payloads need: select values may arrive
// as "1" or 1, checkboxes as true or "1". Numeric strings compare as numbers,
// booleans compare by truthiness, everything else by string form.
func LooseEqual(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}

	if ab, ok := a.(bool); ok {
		return ab == truthy(b)
	}
	if bb, ok := b.(bool); ok {
		return bb == truthy(a)
	}

	if as, ok := sequence(a); ok {
		bs, ok := sequence(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !LooseEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if _, ok := sequence(b); ok {
		return false
	}

	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return stringOf(a) == stringOf(b)
}

// StrictEqual requires identical dynamic types, except that all numeric
// kinds compare by value.
func StrictEqual(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr && !bStr {
		af, aNum := toFloat(a)
		bf, bNum := toFloat(b)
		if aNum && bNum {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values: numerically when both are numeric, otherwise
// by string form.
func compare(a, b any) (int, bool) {
	if isNil(b) {
		return 0, false
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if _, ok := sequence(a); ok {
		return 0, false
	}
	if _, ok := sequence(b); ok {
		return 0, false
	}
	return strings.Compare(stringOf(a), stringOf(b)), true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	return !IsEmpty(v)
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
