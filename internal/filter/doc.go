// Package filter parses CSS-style filter values and applies them to layer
// rasters.
//
// A Spec is what callers hand to a layer: "none", a single filter string
// ("blur(20px) grayscale(50%)") or an ordered list of such strings. Compile
// turns a Spec into a Chain of Ops that run left to right on a premultiplied
// *image.RGBA in place. Ops own their scratch buffers so a warm chain does not
// allocate per frame; a Chain must therefore not be shared between layers.
//
// url(#name) references resolve against the package registry. Built-in
// presets are registered at init time; callers may Register their own.
package filter
