package taskrunner

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrMissingParam is returned when a required key=value is absent.
	ErrMissingParam = errors.New("missing required parameter")
	// ErrBadParam covers malformed, unknown or invalid parameters.
	ErrBadParam = errors.New("invalid parameter")
)

// Params holds caller-supplied key=value arguments.
type Params map[string]string

// ParamSpec declares one key a task accepts.
type ParamSpec struct {
	Name     string
	Help     string
	Required bool
	// Validate, when set, checks the raw value.
	Validate func(string) error
}

// Placeholder is what the help listing shows after key=
func (p ParamSpec) Placeholder() string {
	if p.Help != "" {
		return p.Help
	}
	return "value"
}

// ParseParams parses key=value args against specs. Values are kept verbatim.
func ParseParams(specs []ParamSpec, args []string) (Params, error) {
	known := make(map[string]ParamSpec, len(specs))
	for _, s := range specs {
		known[s.Name] = s
	}

	params := make(Params, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrBadParam, arg)
		}
		spec, ok := known[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown key %q (accepted: %s)", ErrBadParam, key, acceptedKeys(specs))
		}
		if _, dup := params[key]; dup {
			return nil, fmt.Errorf("%w: %q given more than once", ErrBadParam, key)
		}
		if spec.Validate != nil {
			if err := spec.Validate(val); err != nil {
				return nil, fmt.Errorf("%w: %s=%s: %v", ErrBadParam, key, val, err)
			}
		}
		params[key] = val
	}

	for _, s := range specs {
		if _, ok := params[s.Name]; s.Required && !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, s.Name)
		}
	}
	return params, nil
}

// NonNegativeInt validates a count parameter
func NonNegativeInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not an integer")
	}
	if n < 0 {
		return fmt.Errorf("must be >= 0")
	}
	return nil
}

// OneOf returns a validator accepting only the listed values
func OneOf(values ...string) func(string) error {
	return func(v string) error {
		for _, allowed := range values {
			if v == allowed {
				return nil
			}
		}
		return fmt.Errorf("want one of %s", strings.Join(values, ", "))
	}
}

func acceptedKeys(specs []ParamSpec) string {
	if len(specs) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.Name)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// expandArgs substitutes "{key}" tokens with param values. A token whose
// param was not supplied is dropped.
func expandArgs(args []string, params Params) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if len(a) > 2 && strings.HasPrefix(a, "{") && strings.HasSuffix(a, "}") {
			key := a[1 : len(a)-1]
			if v, ok := params[key]; ok {
				out = append(out, v)
			}
			continue
		}
		out = append(out, a)
	}
	return out
}
