package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/lineOS/internal/core/domain"
)

// ValidateArgs checks model-proposed arguments against a tool's schema and
// returns a normalized copy: defaults applied, numeric strings coerced,
// unknown keys dropped. A validation failure rejects the call before the
// executor ever runs.
func ValidateArgs(tool *domain.Tool, args map[string]any) (map[string]any, error) {
	schema := tool.Args
	if schema == nil {
		return map[string]any{}, nil
	}
	if args == nil {
		args = map[string]any{}
	}

	out := make(map[string]any, len(args))
	var problems []string

	for name, ref := range schema.Properties {
		prop := ref.Value
		if prop == nil {
			continue
		}

		raw, present := args[name]
		if !present || raw == nil {
			if prop.Default != nil {
				out[name] = prop.Default
			}
			continue
		}

		val, err := coerceValue(name, prop, raw)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		out[name] = val
	}

	for _, req := range schema.Required {
		if _, ok := out[req]; !ok {
			problems = append(problems, fmt.Sprintf("missing required argument %q", req))
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid arguments for %s: %s", tool.Name, strings.Join(problems, "; "))
	}
	return out, nil
}

func coerceValue(name string, prop *openapi3.Schema, raw any) (any, error) {
	typ := ""
	if prop.Type != nil && len(*prop.Type) > 0 {
		typ = (*prop.Type)[0]
	}

	switch typ {
	case openapi3.TypeString:
		s, ok := raw.(string)
		if !ok {
			s = fmt.Sprintf("%v", raw)
		}
		if len(prop.Enum) > 0 {
			for _, allowed := range prop.Enum {
				if as, ok := allowed.(string); ok && as == s {
					return s, nil
				}
			}
			return nil, fmt.Errorf("argument %q must be one of %s", name, enumList(prop.Enum))
		}
		return s, nil

	case openapi3.TypeInteger:
		n, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q must be an integer", name)
		}
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("argument %q must be an integer", name)
		}
		i := int(n)
		if prop.Min != nil && n < *prop.Min {
			return nil, fmt.Errorf("argument %q must be >= %v", name, *prop.Min)
		}
		if prop.Max != nil && n > *prop.Max {
			return nil, fmt.Errorf("argument %q must be <= %v", name, *prop.Max)
		}
		return i, nil

	case openapi3.TypeNumber:
		n, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q must be a number", name)
		}
		if prop.Min != nil && n < *prop.Min {
			return nil, fmt.Errorf("argument %q must be >= %v", name, *prop.Min)
		}
		if prop.Max != nil && n > *prop.Max {
			return nil, fmt.Errorf("argument %q must be <= %v", name, *prop.Max)
		}
		return n, nil

	case openapi3.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		if s, ok := raw.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, nil
			}
		}
		return nil, fmt.Errorf("argument %q must be a boolean", name)

	default:
		return raw, nil
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("not numeric")
	}
}

func enumList(enum []any) string {
	vals := make([]string, 0, len(enum))
	for _, e := range enum {
		vals = append(vals, fmt.Sprintf("%v", e))
	}
	return strings.Join(vals, ", ")
}
