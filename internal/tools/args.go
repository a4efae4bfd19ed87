package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ArgError describes a missing or malformed argument.
type ArgError struct {
	Name   string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q %s", e.Name, e.Reason)
}

func missing(name string) error {
	return &ArgError{Name: name, Reason: "is required"}
}

func invalid(name, want string, got any) error {
	return &ArgError{Name: name, Reason: fmt.Sprintf("must be a %s, got %T", want, got)}
}

// StringArg returns a required, non-empty string argument.
func StringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", missing(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(name, "string", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", missing(name)
	}
	return s, nil
}

// OptString returns a string argument or def when absent.
func OptString(args map[string]any, name, def string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(name, "string", v)
	}
	return s, nil
}

// RawString returns a required string argument that may be empty.
func RawString(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", missing(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(name, "string", v)
	}
	return s, nil
}

// IntArg returns a required integer argument. JSON numbers and numeric
// strings are accepted.
func IntArg(args map[string]any, name string) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, missing(name)
	}
	return toInt(name, v)
}

// OptInt returns an integer argument or def when absent.
func OptInt(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	return toInt(name, v)
}

func toInt(name string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, invalid(name, "whole number", v)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, invalid(name, "number", v)
		}
		return i, nil
	default:
		return 0, invalid(name, "number", v)
	}
}

// OptFloat returns a numeric argument, or nil when absent.
func OptFloat(args map[string]any, name string) (*float64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, invalid(name, "number", v)
		}
		return &f, nil
	default:
		return nil, invalid(name, "number", v)
	}
}

// BoolArg returns a boolean argument or def when absent.
func BoolArg(args map[string]any, name string, def bool) (bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, invalid(name, "boolean", v)
		}
		return parsed, nil
	default:
		return false, invalid(name, "boolean", v)
	}
}
