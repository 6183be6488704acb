// Package export renders trajectories for use outside the terminal.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/tanksim/internal/dynamo"
)

type SVGOptions struct {
	Width  int
	Height int
	Title  string
}

func DefaultSVGOptions() SVGOptions {
	return SVGOptions{Width: 800, Height: 500}
}

const (
	margin       = 50.0
	panelGap     = 30.0
	temperatureC = "#e4572e"
	setpointC    = "#76b041"
	commandC     = "#17bebb"
)

type point struct{ X, Y float64 }

type panel struct {
	x0, y0, w, h float64
	minX, maxX   float64
	minY, maxY   float64
}

func newPanel(x0, y0, w, h, minX, maxX float64, series ...[]float64) panel {
	p := panel{x0: x0, y0: y0, w: w, h: h, minX: minX, maxX: maxX}
	p.minY, p.maxY = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			p.minY = math.Min(p.minY, v)
			p.maxY = math.Max(p.maxY, v)
		}
	}
	if math.IsInf(p.minY, 1) {
		p.minY, p.maxY = 0, 1
	}
	pad := (p.maxY - p.minY) * 0.05
	if pad == 0 {
		pad = 0.5
	}
	p.minY -= pad
	p.maxY += pad
	if p.maxX == p.minX {
		p.maxX = p.minX + 1
	}
	return p
}

func (p panel) project(x, y float64) point {
	return point{
		X: p.x0 + (x-p.minX)/(p.maxX-p.minX)*p.w,
		Y: p.y0 + p.h - (y-p.minY)/(p.maxY-p.minY)*p.h,
	}
}

func (p panel) path(xs, ys []float64, color string, dashed bool) string {
	var sb strings.Builder
	sb.WriteString(`<path fill="none" stroke="` + color + `" stroke-width="1.5"`)
	if dashed {
		sb.WriteString(` stroke-dasharray="6,4"`)
	}
	sb.WriteString(` d="`)
	for i := range xs {
		pt := p.project(xs[i], ys[i])
		if i == 0 {
			fmt.Fprintf(&sb, "M%.1f,%.1f", pt.X, pt.Y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", pt.X, pt.Y)
		}
	}
	sb.WriteString("\"/>\n")
	return sb.String()
}

func (p panel) frame(label string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="#444"/>`+"\n",
		p.x0, p.y0, p.w, p.h)
	fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="11" fill="#ccc" text-anchor="end">%.4g</text>`+"\n",
		p.x0-4, p.y0+10, p.maxY)
	fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="11" fill="#ccc" text-anchor="end">%.4g</text>`+"\n",
		p.x0-4, p.y0+p.h, p.minY)
	fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="12" fill="#ccc">%s</text>`+"\n",
		p.x0+4, p.y0-6, label)
	return sb.String()
}

// WriteSVG draws temperature and setpoint in an upper panel and the heater
// command below it, sharing the time axis.
func WriteSVG(w io.Writer, tr dynamo.Trajectory, opts SVGOptions) error {
	if len(tr) < 2 {
		return fmt.Errorf("export: need at least 2 samples, got %d", len(tr))
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultSVGOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}

	times := tr.Times()
	temps := tr.Temperatures()
	setpoints := tr.Setpoints()
	commands := tr.Commands()

	width, height := float64(opts.Width), float64(opts.Height)
	plotW := width - 2*margin
	plotH := height - 2*margin - panelGap
	upperH := plotH * 0.65
	lowerH := plotH - upperH

	t0, t1 := times[0], times[len(times)-1]
	upper := newPanel(margin, margin, plotW, upperH, t0, t1, temps, setpoints)
	lower := newPanel(margin, margin+upperH+panelGap, plotW, lowerH, t0, t1, commands)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="monospace">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, opts.Width, opts.Height, opts.Width, opts.Height)

	if opts.Title != "" {
		fmt.Fprintf(&sb, `<text x="%.1f" y="20" font-size="14" fill="#eee" text-anchor="middle">%s</text>`+"\n",
			width/2, escape(opts.Title))
	}

	sb.WriteString(upper.frame("temperature / setpoint"))
	sb.WriteString(upper.path(times, setpoints, setpointC, true))
	sb.WriteString(upper.path(times, temps, temperatureC, false))

	sb.WriteString(lower.frame("heater command"))
	sb.WriteString(lower.path(times, commands, commandC, false))

	fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="11" fill="#ccc">t=%.4gs</text>`+"\n",
		margin, height-margin/2, t0)
	fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="11" fill="#ccc" text-anchor="end">t=%.4gs</text>`+"\n",
		width-margin, height-margin/2, t1)
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
