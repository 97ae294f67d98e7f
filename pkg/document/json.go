package document

import (
	json "github.com/goccy/go-json"
)

// MarshalJSON renders v as standard JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(toPlain(v))
}

// UnmarshalJSON parses standard JSON into v, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytesReaderOf(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = fromPlain(raw)
	return nil
}

// Parse decodes a single JSON document into a Value.
func Parse(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Marshal renders v as compact JSON bytes.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(toPlain(v))
}

func toPlain(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.B
	case KindNumber:
		return v.N
	case KindString:
		return v.S
	case KindArray:
		out := make([]interface{}, len(v.A))
		for i, e := range v.A {
			out[i] = toPlain(e)
		}
		return out
	case KindObject:
		// goccy/go-json marshals map[string]interface{} with sorted keys;
		// to preserve insertion order we build an ordered-map-compatible
		// struct-free representation by encoding through a pair slice.
		return orderedMap{obj: v.O}
	default:
		return nil
	}
}

func fromPlain(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		f, _ := t.Float64()
		return Number(f)
	case float64:
		return Number(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = fromPlain(e)
		}
		return Array(items)
	case map[string]interface{}:
		o := NewObject()
		for k, e := range t {
			o.Set(k, fromPlain(e))
		}
		return ObjectValue(o)
	default:
		return Null()
	}
}
