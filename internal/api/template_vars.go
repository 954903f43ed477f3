package api

import (
	"fmt"

	"github.com/buger/jsonparser"
)

// TemplateVariables is an ordered list of template values. It decodes from
// a JSON object, keeping the keys' document order, or from a JSON array.
type TemplateVariables []string

func (tv *TemplateVariables) UnmarshalJSON(data []byte) error {
	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return fmt.Errorf("templateVariables: %w", err)
	}

	var out []string
	switch dataType {
	case jsonparser.Null:
		*tv = nil
		return nil
	case jsonparser.Object:
		err = jsonparser.ObjectEach(value, func(key, v []byte, vt jsonparser.ValueType, _ int) error {
			s, err := scalarString(v, vt)
			if err != nil {
				return fmt.Errorf("templateVariables.%s: %w", key, err)
			}
			out = append(out, s)
			return nil
		})
	case jsonparser.Array:
		var inner error
		_, err = jsonparser.ArrayEach(value, func(v []byte, vt jsonparser.ValueType, _ int, _ error) {
			if inner != nil {
				return
			}
			s, e := scalarString(v, vt)
			if e != nil {
				inner = fmt.Errorf("templateVariables[%d]: %w", len(out), e)
				return
			}
			out = append(out, s)
		})
		if err == nil {
			err = inner
		}
	default:
		return fmt.Errorf("templateVariables: expected object or array, got %s", dataType)
	}
	if err != nil {
		return err
	}
	*tv = out
	return nil
}

func scalarString(v []byte, vt jsonparser.ValueType) (string, error) {
	switch vt {
	case jsonparser.String:
		return jsonparser.ParseString(v)
	case jsonparser.Number, jsonparser.Boolean:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %s", vt)
	}
}
