// Package chart computes pie and donut geometry and renders it as standalone SVG.
package chart

import (
	"fmt"
	"html"
	"math"
	"strings"
)

// FullCircle is one full turn in radians.
const FullCircle = 2 * math.Pi

// Datum is one labelled value to plot.
type Datum struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Color string  `json:"color,omitempty"`
}

// Slice is the computed geometry for a Datum. Angles are radians measured clockwise from 12 o'clock.
type Slice struct {
	Label        string  `json:"label"`
	Value        float64 `json:"value"`
	Color        string  `json:"color,omitempty"`
	Percentage   float64 `json:"percentage"`
	PercentLabel int     `json:"percentLabel"`
	StartAngle   float64 `json:"startAngle"`
	EndAngle     float64 `json:"endAngle"`
	Sweep        float64 `json:"sweep"`
}

// Slices converts values into pie slices. Non-positive values are skipped; a zero total yields nil.
// The final slice always ends at exactly FullCircle so the sweeps close the circle.
func Slices(data []Datum) []Slice {
	var total float64
	for _, d := range data {
		if d.Value > 0 {
			total += d.Value
		}
	}
	if total == 0 {
		return nil
	}

	slices := make([]Slice, 0, len(data))
	angle := 0.0
	for _, d := range data {
		if d.Value <= 0 {
			continue
		}
		fraction := d.Value / total
		sweep := fraction * FullCircle
		slices = append(slices, Slice{
			Label:        d.Label,
			Value:        d.Value,
			Color:        d.Color,
			Percentage:   fraction * 100,
			PercentLabel: int(math.Round(fraction * 100)),
			StartAngle:   angle,
			EndAngle:     angle + sweep,
			Sweep:        sweep,
		})
		angle += sweep
	}
	last := &slices[len(slices)-1]
	last.EndAngle = FullCircle
	last.Sweep = FullCircle - last.StartAngle
	return slices
}

// Point returns the cartesian point at angle on a circle centred at (cx, cy).
func Point(cx, cy, r, angle float64) (float64, float64) {
	return cx + r*math.Sin(angle), cy - r*math.Cos(angle)
}

// ArcPath returns an SVG path for s. An inner radius above zero draws a donut segment.
func ArcPath(cx, cy, outer, inner float64, s Slice) string {
	if s.Sweep >= FullCircle-1e-9 {
		return fullRingPath(cx, cy, outer, inner)
	}
	largeArc := 0
	if s.Sweep > math.Pi {
		largeArc = 1
	}
	x1, y1 := Point(cx, cy, outer, s.StartAngle)
	x2, y2 := Point(cx, cy, outer, s.EndAngle)

	var b strings.Builder
	fmt.Fprintf(&b, "M %.3f %.3f A %.3f %.3f 0 %d 1 %.3f %.3f", x1, y1, outer, outer, largeArc, x2, y2)
	if inner <= 0 {
		fmt.Fprintf(&b, " L %.3f %.3f Z", cx, cy)
		return b.String()
	}
	x3, y3 := Point(cx, cy, inner, s.EndAngle)
	x4, y4 := Point(cx, cy, inner, s.StartAngle)
	fmt.Fprintf(&b, " L %.3f %.3f A %.3f %.3f 0 %d 0 %.3f %.3f Z", x3, y3, inner, inner, largeArc, x4, y4)
	return b.String()
}

// a single SVG arc cannot describe a closed circle, so the ring is drawn as two half arcs
func fullRingPath(cx, cy, outer, inner float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "M %.3f %.3f A %.3f %.3f 0 1 1 %.3f %.3f A %.3f %.3f 0 1 1 %.3f %.3f Z",
		cx, cy-outer, outer, outer, cx, cy+outer, outer, outer, cx, cy-outer)
	if inner > 0 {
		fmt.Fprintf(&b, " M %.3f %.3f A %.3f %.3f 0 1 0 %.3f %.3f A %.3f %.3f 0 1 0 %.3f %.3f Z",
			cx, cy-inner, inner, inner, cx, cy+inner, inner, inner, cx, cy-inner)
	}
	return b.String()
}

// Options controls SVG output.
type Options struct {
	Size       float64
	InnerRatio float64
	Title      string
	Palette    []string
}

var defaultPalette = []string{"#2563eb", "#16a34a", "#f59e0b", "#dc2626", "#7c3aed", "#0891b2", "#64748b"}

// SVG renders a donut chart with a legend. Empty input renders a grey placeholder ring.
func SVG(data []Datum, opts Options) []byte {
	if opts.Size <= 0 {
		opts.Size = 240
	}
	if opts.InnerRatio < 0 || opts.InnerRatio >= 1 {
		opts.InnerRatio = 0.6
	}
	if len(opts.Palette) == 0 {
		opts.Palette = defaultPalette
	}
	slices := Slices(data)
	legendHeight := 20 * float64(len(slices))
	width, height := opts.Size, opts.Size+legendHeight+10
	cx, cy := opts.Size/2, opts.Size/2
	outer := opts.Size/2 - 4
	inner := outer * opts.InnerRatio

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">`, width, height, width, height)
	if opts.Title != "" {
		fmt.Fprintf(&b, `<title>%s</title>`, html.EscapeString(opts.Title))
	}
	if len(slices) == 0 {
		fmt.Fprintf(&b, `<path d="%s" fill="#e5e7eb" fill-rule="evenodd"/>`, fullRingPath(cx, cy, outer, inner))
	}
	for i, s := range slices {
		color := s.Color
		if color == "" {
			color = opts.Palette[i%len(opts.Palette)]
		}
		fmt.Fprintf(&b, `<path d="%s" fill="%s" fill-rule="evenodd"><title>%s: %d%%</title></path>`,
			ArcPath(cx, cy, outer, inner, s), html.EscapeString(color), html.EscapeString(s.Label), s.PercentLabel)
		y := opts.Size + 14 + float64(i)*20
		fmt.Fprintf(&b, `<rect x="8" y="%.0f" width="12" height="12" fill="%s"/>`, y-10, html.EscapeString(color))
		fmt.Fprintf(&b, `<text x="26" y="%.0f" font-family="sans-serif" font-size="12">%s (%d%%)</text>`, y, html.EscapeString(s.Label), s.PercentLabel)
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}
