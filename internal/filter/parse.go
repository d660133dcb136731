package filter

import (
	"math"
	"strings"

	"github.com/ZacxDev/clipnship/internal/units"
	"github.com/pkg/errors"
)

type function struct {
	name string
	args string
}

func parseValue(value string) ([]Op, error) {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, None) {
		return nil, nil
	}

	fns, err := scanFunctions(trimmed)
	if err != nil {
		return nil, &SyntaxError{Filter: value, Reason: err.Error()}
	}
	if len(fns) == 0 {
		return nil, &SyntaxError{Filter: value, Reason: "no filter functions"}
	}

	ops := make([]Op, 0, len(fns))
	for _, fn := range fns {
		op, err := buildOp(fn)
		if err != nil {
			return nil, &SyntaxError{Filter: value, Reason: err.Error()}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// scanFunctions splits "a(x) b(y z)" into its function calls. Parentheses
// nest so drop-shadow(1px 1px rgb(0, 0, 0)) stays one call.
func scanFunctions(s string) ([]function, error) {
	var out []function
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return out, nil
		}

		start := i
		for i < len(s) && (isLetter(s[i]) || s[i] == '-') {
			i++
		}
		name := strings.ToLower(s[start:i])
		if name == "" {
			return nil, errors.Errorf("unexpected %q at offset %d", s[i], i)
		}
		if i >= len(s) || s[i] != '(' {
			return nil, errors.Errorf("expected '(' after %s", name)
		}
		i++

		argStart := i
		depth := 1
		var quote byte
		for i < len(s) && depth > 0 {
			c := s[i]
			switch {
			case quote != 0:
				if c == quote {
					quote = 0
				}
			case c == '"' || c == '\'':
				quote = c
			case c == '(':
				depth++
			case c == ')':
				depth--
			}
			i++
		}
		if depth != 0 {
			return nil, errors.Errorf("unterminated %s(", name)
		}
		out = append(out, function{name: name, args: strings.TrimSpace(s[argStart : i-1])})
	}
}

func buildOp(fn function) (Op, error) {
	switch fn.name {
	case "blur":
		radius := 0.0
		if fn.args != "" {
			v, err := units.ParseLength(fn.args)
			if err != nil {
				return nil, err
			}
			radius = v
		}
		if radius < 0 {
			return nil, errors.Errorf("blur radius must not be negative")
		}
		return NewBlur(radius), nil

	case "brightness", "contrast", "saturate":
		v, err := amountArg(fn, 1)
		if err != nil {
			return nil, err
		}
		switch fn.name {
		case "brightness":
			return Brightness(v), nil
		case "contrast":
			return Contrast(v), nil
		default:
			return Saturate(v), nil
		}

	case "grayscale", "invert", "opacity", "sepia":
		v, err := amountArg(fn, 1)
		if err != nil {
			return nil, err
		}
		v = math.Min(v, 1)
		switch fn.name {
		case "grayscale":
			return Grayscale(v), nil
		case "invert":
			return Invert(v), nil
		case "opacity":
			return Opacity(v), nil
		default:
			return Sepia(v), nil
		}

	case "hue-rotate":
		deg := 0.0
		if fn.args != "" {
			v, err := units.ParseAngle(fn.args)
			if err != nil {
				return nil, err
			}
			deg = v
		}
		return HueRotate(deg), nil

	case "drop-shadow":
		return parseDropShadow(fn.args)

	case "url":
		ref := strings.Trim(strings.TrimSpace(fn.args), `"'`)
		op, ok := Lookup(ref)
		if !ok {
			return nil, errors.Errorf("unknown filter reference %q", ref)
		}
		return op, nil

	default:
		return nil, errors.Errorf("unsupported filter function %s()", fn.name)
	}
}

func amountArg(fn function, def float64) (float64, error) {
	if fn.args == "" {
		return def, nil
	}
	v, err := units.ParseAmount(fn.args)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.Errorf("%s() must not be negative", fn.name)
	}
	return v, nil
}

func parseDropShadow(args string) (Op, error) {
	var lengths []float64
	var colorArg string
	for _, tok := range splitTopLevel(args) {
		if v, err := units.ParseLength(tok); err == nil {
			lengths = append(lengths, v)
			continue
		}
		if colorArg != "" {
			return nil, errors.Errorf("drop-shadow has more than one color")
		}
		colorArg = tok
	}
	if len(lengths) < 2 || len(lengths) > 3 {
		return nil, errors.Errorf("drop-shadow needs two or three lengths, got %d", len(lengths))
	}

	blur := 0.0
	if len(lengths) == 3 {
		blur = lengths[2]
	}
	if blur < 0 {
		return nil, errors.Errorf("drop-shadow blur must not be negative")
	}

	c := defaultShadowColor
	if colorArg != "" {
		parsed, err := ParseColor(colorArg)
		if err != nil {
			return nil, err
		}
		c = parsed
	}
	return NewDropShadow(lengths[0], lengths[1], blur, c), nil
}

// splitTopLevel splits on whitespace outside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(':
			depth++
		case c == ')':
			depth--
		}
		if isSpace(c) && depth == 0 {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
