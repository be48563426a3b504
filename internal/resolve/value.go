package resolve

import (
	"fmt"
	"strconv"

	"peoplecal/internal/host"
)

// Value is either a direct value or a reference to another record that must
// be fetched before the value can be used.
type Value struct {
	direct any
	refID  string
	isRef  bool
}

// Direct wraps a value that needs no lookup.
func Direct(v any) Value { return Value{direct: v} }

// Reference wraps an indirect pointer to another record.
func Reference(id string) Value { return Value{refID: id, isRef: true} }

// IsReference reports whether v still needs resolution.
func (v Value) IsReference() bool { return v.isRef }

// RefID returns the referenced record id ("" for direct values).
func (v Value) RefID() string { return v.refID }

// Raw returns the direct value (nil for references).
func (v Value) Raw() any { return v.direct }

// Classify inspects a raw property value and reports references as such.
// An object counts as a reference when it carries an "id" (or "db/id") field.
func Classify(raw any) Value {
	switch x := raw.(type) {
	case host.Ref:
		return Reference(x.ID)
	case *host.Ref:
		if x != nil {
			return Reference(x.ID)
		}
		return Direct(nil)
	case map[string]any:
		for _, k := range []string{"id", "db/id", ":db/id"} {
			if id, ok := idString(x[k]); ok {
				return Reference(id)
			}
		}
		return Direct(raw)
	case []any:
		// Multi-valued properties: take the first element.
		if len(x) == 0 {
			return Direct(nil)
		}
		return Classify(x[0])
	default:
		return Direct(raw)
	}
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatInt(int64(id), 10), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(id), true
	}
}
