package filter

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// None is the filter value that applies no effect.
const None = "none"

// MaxMargin caps the bleed any op or chain reports. Spreads past it are
// wider than any canvas this package draws on.
const MaxMargin = 1 << 20

// ceilMargin rounds a distance up to whole pixels, saturating at MaxMargin.
func ceilMargin(v float64) int {
	if !(v < MaxMargin) {
		return MaxMargin
	}
	if v <= 0 {
		return 0
	}
	return int(math.Ceil(v))
}

func addMargin(a, b int) int {
	if a >= MaxMargin-b {
		return MaxMargin
	}
	return a + b
}

// Op is one compiled filter function.
type Op interface {
	// Apply transforms img in place. Only img.Rect is touched.
	Apply(img *image.RGBA)

	// Margin is how far, in pixels, the op can move content outside the
	// pixels that produced it (blur spread, shadow offset).
	Margin() int
}

// Spec is a layer's filter value in the order the caller supplied it.
type Spec []string

// NewSpec normalizes raw filter values. Blank entries are dropped and an
// empty result becomes "none".
func NewSpec(values ...string) Spec {
	out := make(Spec, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return Spec{None}
	}
	return out
}

// IsNone reports whether s applies no effect.
func (s Spec) IsNone() bool {
	for _, v := range s {
		if !strings.EqualFold(strings.TrimSpace(v), None) {
			return false
		}
	}
	return true
}

// String renders s as a single CSS filter value.
func (s Spec) String() string {
	if s.IsNone() {
		return None
	}
	parts := make([]string, 0, len(s))
	for _, v := range s {
		if strings.EqualFold(strings.TrimSpace(v), None) {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// Clone returns an independent copy.
func (s Spec) Clone() Spec {
	if s == nil {
		return nil
	}
	out := make(Spec, len(s))
	copy(out, s)
	return out
}

// Equal reports whether two specs hold the same values in the same order.
func (s Spec) Equal(other Spec) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// SyntaxError reports a filter value that could not be compiled.
type SyntaxError struct {
	Filter string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid filter %q: %s", e.Filter, e.Reason)
}

// Chain is a compiled Spec.
type Chain struct {
	spec   Spec
	ops    []Op
	margin int
}

// Compile parses every entry of spec and concatenates the resulting ops.
func Compile(spec Spec) (*Chain, error) {
	c := &Chain{spec: spec.Clone()}
	for _, value := range spec {
		ops, err := parseValue(value)
		if err != nil {
			return nil, err
		}
		c.ops = append(c.ops, ops...)
	}
	for _, op := range c.ops {
		c.margin = addMargin(c.margin, op.Margin())
	}
	return c, nil
}

// MustCompile is like Compile but panics on error. Intended for constants.
func MustCompile(values ...string) *Chain {
	c, err := Compile(NewSpec(values...))
	if err != nil {
		panic(err)
	}
	return c
}

// Spec returns the value the chain was compiled from.
func (c *Chain) Spec() Spec {
	return c.spec
}

// Empty reports whether applying the chain is a no-op.
func (c *Chain) Empty() bool {
	return c == nil || len(c.ops) == 0
}

// Len is the number of compiled ops.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ops)
}

// Margin is the total bleed of the chain in pixels.
func (c *Chain) Margin() int {
	if c == nil {
		return 0
	}
	return c.margin
}

// Apply runs every op on img in order.
func (c *Chain) Apply(img *image.RGBA) {
	if c.Empty() || img == nil || img.Rect.Empty() {
		return
	}
	for i := 0; i < len(c.ops); i++ {
		c.ops[i].Apply(img)
	}
}

// sequence groups several ops behind one registry name.
type sequence []Op

func (s sequence) Apply(img *image.RGBA) {
	for i := 0; i < len(s); i++ {
		s[i].Apply(img)
	}
}

func (s sequence) Margin() int {
	m := 0
	for _, op := range s {
		m = addMargin(m, op.Margin())
	}
	return m
}
