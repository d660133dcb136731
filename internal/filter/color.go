package filter

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/ZacxDev/clipnship/internal/units"
	"github.com/pkg/errors"
	"golang.org/x/image/colornames"
)

// ParseColor accepts CSS named colors, "transparent", hex notation
// (#rgb, #rgba, #rrggbb, #rrggbbaa) and rgb()/rgba() functions.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "transparent":
		return color.NRGBA{}, nil
	case strings.HasPrefix(s, "#"):
		return parseHexColor(s)
	case strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba("):
		return parseRGBFunc(s)
	}
	if c, ok := colornames.Map[s]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return color.NRGBA{}, errors.Errorf("unknown color %q", s)
}

func parseHexColor(s string) (color.NRGBA, error) {
	hex := s[1:]
	switch len(hex) {
	case 3, 4:
		expanded := make([]byte, 0, len(hex)*2)
		for i := 0; i < len(hex); i++ {
			expanded = append(expanded, hex[i], hex[i])
		}
		hex = string(expanded)
	case 6, 8:
	default:
		return color.NRGBA{}, errors.Errorf("bad hex color %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, errors.Wrapf(err, "bad hex color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseRGBFunc(s string) (color.NRGBA, error) {
	open := strings.IndexByte(s, '(')
	if !strings.HasSuffix(s, ")") {
		return color.NRGBA{}, errors.Errorf("unterminated color %q", s)
	}
	body := s[open+1 : len(s)-1]
	var parts []string
	if strings.Contains(body, ",") {
		parts = strings.Split(body, ",")
	} else {
		// rgb(r g b / a)
		body = strings.Replace(body, "/", " ", 1)
		parts = strings.Fields(body)
	}
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, errors.Errorf("bad color %q", s)
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		p := strings.TrimSpace(parts[i])
		if pct, ok := units.ParsePercentage(p); ok {
			ch[i] = clampUint8(float32(pct * 255))
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return color.NRGBA{}, errors.Wrapf(err, "bad color channel %q", p)
		}
		ch[i] = clampUint8(float32(v))
	}

	alpha := uint8(255)
	if len(parts) == 4 {
		a, err := units.ParseAmount(strings.TrimSpace(parts[3]))
		if err != nil {
			return color.NRGBA{}, errors.Wrapf(err, "bad alpha in %q", s)
		}
		alpha = clampUint8(float32(a * 255))
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, nil
}
