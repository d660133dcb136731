// Package layer keeps the ordered, name-keyed stack of layers a converter
// paints. Paint order is insertion order.
package layer

import (
	"fmt"
	"math"

	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/filter"
	"github.com/ZacxDev/clipnship/internal/media"
	"golang.org/x/exp/slices"
)

// DuplicateLayerError is returned by Add when the name is taken.
type DuplicateLayerError struct {
	Name string
}

func (e *DuplicateLayerError) Error() string {
	return fmt.Sprintf("layer with name %q already exists", e.Name)
}

// NotFoundError is returned by updates to a layer that does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("layer with name %q not found", e.Name)
}

// InvalidScaleError rejects scales that are not positive finite numbers.
type InvalidScaleError struct {
	Scale float64
}

func (e *InvalidScaleError) Error() string {
	return fmt.Sprintf("invalid layer scale %v: must be a positive number", e.Scale)
}

// Layer is one visual contribution to the composite.
type Layer struct {
	Name   string
	Scale  float64
	Filter filter.Spec
	Source media.Source

	chain *filter.Chain
}

// Chain is the compiled form of Filter.
func (l *Layer) Chain() *filter.Chain {
	return l.chain
}

// snapshot is a copy safe to hand outside the store.
func (l *Layer) snapshot() Layer {
	return Layer{Name: l.Name, Scale: l.Scale, Filter: l.Filter.Clone(), Source: l.Source}
}

// Store is the ordered layer list. It is not safe for concurrent use; all
// calls happen on the event loop.
type Store struct {
	layers []*Layer
	source media.Source
	sched  eventloop.Scheduler

	redraw        func()
	redrawPending bool
	onChange      func(count int)
}

// NewStore creates an empty store whose layers draw from source.
func NewStore(source media.Source, sched eventloop.Scheduler) *Store {
	return &Store{source: source, sched: sched}
}

// OnRedraw sets the draw callback scheduled after every mutation.
func (s *Store) OnRedraw(fn func()) {
	s.redraw = fn
}

// OnChange is called with the layer count after every mutation.
func (s *Store) OnChange(fn func(count int)) {
	s.onChange = fn
}

func validScale(scale float64) error {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return &InvalidScaleError{Scale: scale}
	}
	return nil
}

func (s *Store) index(name string) int {
	return slices.IndexFunc(s.layers, func(l *Layer) bool { return l.Name == name })
}

// Add appends a new layer on top of the stack.
func (s *Store) Add(name string, scale float64, filterValues ...string) error {
	if s.index(name) >= 0 {
		return &DuplicateLayerError{Name: name}
	}
	if err := validScale(scale); err != nil {
		return err
	}
	spec := filter.NewSpec(filterValues...)
	chain, err := filter.Compile(spec)
	if err != nil {
		return err
	}

	s.layers = append(s.layers, &Layer{
		Name:   name,
		Scale:  scale,
		Filter: spec,
		Source: s.source,
		chain:  chain,
	})
	s.changed()
	return nil
}

// Remove deletes the named layer. Removing a missing layer is not an error.
func (s *Store) Remove(name string) {
	if i := s.index(name); i >= 0 {
		s.layers[i] = nil
		s.layers = slices.Delete(s.layers, i, i+1)
	}
	s.changed()
}

// Get returns a copy of the named layer.
func (s *Store) Get(name string) (Layer, bool) {
	i := s.index(name)
	if i < 0 {
		return Layer{}, false
	}
	return s.layers[i].snapshot(), true
}

// UpdateScale changes only the named layer's scale.
func (s *Store) UpdateScale(name string, scale float64) error {
	i := s.index(name)
	if i < 0 {
		return &NotFoundError{Name: name}
	}
	if err := validScale(scale); err != nil {
		return err
	}
	s.layers[i].Scale = scale
	s.changed()
	return nil
}

// UpdateFilter replaces only the named layer's filter.
func (s *Store) UpdateFilter(name string, filterValues ...string) error {
	i := s.index(name)
	if i < 0 {
		return &NotFoundError{Name: name}
	}
	spec := filter.NewSpec(filterValues...)
	l := s.layers[i]
	if !spec.Equal(l.Filter) {
		chain, err := filter.Compile(spec)
		if err != nil {
			return err
		}
		l.Filter = spec
		l.chain = chain
	}
	s.changed()
	return nil
}

// List returns copies of every layer in paint order.
func (s *Store) List() []Layer {
	out := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.snapshot()
	}
	return out
}

// Len is the number of layers.
func (s *Store) Len() int {
	return len(s.layers)
}

// At returns the i-th layer in paint order without copying. The caller must
// not keep it past the current loop task.
func (s *Store) At(i int) *Layer {
	return s.layers[i]
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange(len(s.layers))
	}
	if s.redraw == nil || s.redrawPending {
		return
	}
	s.redrawPending = true
	s.sched.NextFrame(func() {
		s.redrawPending = false
		if s.redraw != nil {
			s.redraw()
		}
	})
}
