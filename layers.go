package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ZacxDev/clipnship/internal/geometry"
	"github.com/ZacxDev/clipnship/pkg/clipconverter"
)

// defaultLayers is the stack used when no --layer flag is given: the video
// blurred to fill the canvas, with the sharp video fitted on top.
var defaultLayers = []string{"bg:cover:blur(20px)", "main:fit"}

type layerFlag struct {
	name   string
	scale  float64
	filter string
}

// parseLayer reads "name:scale[:filter]". scale is a number, "cover" (fill
// the canvas, cropping) or "fit" (show the whole frame).
func parseLayer(value string, src, canvas geometry.Size) (layerFlag, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return layerFlag{}, errors.Errorf("layer %q must look like name:scale[:filter]", value)
	}
	l := layerFlag{name: strings.TrimSpace(parts[0])}
	if len(parts) == 3 {
		l.filter = strings.TrimSpace(parts[2])
	}

	if src.Width <= 0 || src.Height <= 0 {
		return layerFlag{}, errors.Errorf("source size %dx%d is unusable", src.Width, src.Height)
	}
	wr := float64(canvas.Width) / float64(src.Width)
	hr := float64(canvas.Height) / float64(src.Height)

	switch s := strings.ToLower(strings.TrimSpace(parts[1])); s {
	case "cover":
		l.scale = math.Max(wr, hr)
	case "fit":
		l.scale = math.Min(wr, hr)
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return layerFlag{}, errors.Errorf("layer %q: scale must be a number, cover or fit", value)
		}
		l.scale = v
	}
	return l, nil
}

// addLayers parses values (or the defaults) and adds them bottom first.
func addLayers(conv *clipconverter.Converter, values []string) ([]clipconverter.Layer, error) {
	if len(values) == 0 {
		values = defaultLayers
	}
	src := conv.SourceSize()
	canvas := conv.CanvasSize()

	var layers []clipconverter.Layer
	for _, v := range values {
		l, err := parseLayer(v, src, canvas)
		if err != nil {
			return nil, err
		}
		var filters []string
		if l.filter != "" {
			filters = append(filters, l.filter)
		}
		if layers, err = conv.AddLayer(l.name, l.scale, filters...); err != nil {
			return nil, errors.Wrapf(err, "layer %q", v)
		}
	}
	return layers, nil
}
