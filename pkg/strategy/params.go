package strategy

import "fmt"

// Params is the flat key -> value parameter mapping supplied by the caller.
// Values arrive as whatever the transport produced (JSON numbers decode as
// float64), so the accessors normalize types before validating.
type Params map[string]any

func (p Params) intValue(key string, def int) (int, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, &InvalidParameterError{Param: key, Value: raw, Reason: "must be an integer"}
		}
		return int(v), nil
	default:
		return 0, &InvalidParameterError{Param: key, Value: raw, Reason: fmt.Sprintf("expected integer, got %T", raw)}
	}
}

func (p Params) floatValue(key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, &InvalidParameterError{Param: key, Value: raw, Reason: fmt.Sprintf("expected number, got %T", raw)}
	}
}

func (p Params) stringValue(key string, def string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", &InvalidParameterError{Param: key, Value: raw, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	return v, nil
}

func (p Params) boolValue(key string, def bool) (bool, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, &InvalidParameterError{Param: key, Value: raw, Reason: fmt.Sprintf("expected boolean, got %T", raw)}
	}
	return v, nil
}
