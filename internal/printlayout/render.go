package printlayout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/quadra-map/internal/geo"
	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

// PatternCount is the number of monochrome fills; area n uses pattern n % PatternCount.
const PatternCount = 7

const (
	sidebarWidth = 320
	sidebarGap   = 20
	lineHeight   = 18
	listPerLine  = 4
	outlineColor = "#555555"
	monoInk      = "#000000"
)

// patternDefs are drawn in black so they survive grayscale printers.
var patternDefs = [PatternCount]string{
	`<pattern id="qp-0" patternUnits="userSpaceOnUse" width="8" height="8" patternTransform="rotate(45)"><line x1="0" y1="0" x2="0" y2="8" stroke="#000" stroke-width="2"/></pattern>`,
	`<pattern id="qp-1" patternUnits="userSpaceOnUse" width="8" height="8" patternTransform="rotate(-45)"><line x1="0" y1="0" x2="0" y2="8" stroke="#000" stroke-width="2"/></pattern>`,
	`<pattern id="qp-2" patternUnits="userSpaceOnUse" width="8" height="8" patternTransform="rotate(45)"><path d="M0 0V8M0 0H8" stroke="#000" stroke-width="1.5"/></pattern>`,
	`<pattern id="qp-3" patternUnits="userSpaceOnUse" width="8" height="6"><line x1="0" y1="3" x2="8" y2="3" stroke="#000" stroke-width="1.5"/></pattern>`,
	`<pattern id="qp-4" patternUnits="userSpaceOnUse" width="6" height="8"><line x1="3" y1="0" x2="3" y2="8" stroke="#000" stroke-width="1.5"/></pattern>`,
	`<pattern id="qp-5" patternUnits="userSpaceOnUse" width="8" height="8"><circle cx="4" cy="4" r="1.8" fill="#000"/></pattern>`,
	`<pattern id="qp-6" patternUnits="userSpaceOnUse" width="10" height="10"><path d="M0 0H10V10" fill="none" stroke="#000" stroke-width="1"/></pattern>`,
}

func patternID(n int) string {
	if n < 0 {
		n = -n
	}
	return "qp-" + strconv.Itoa(n%PatternCount)
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func esc(s string) string { return xmlEscaper.Replace(s) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Render builds the print document. It never reads outside in, so a
// document carries its own pattern defs and nothing outlives it.
func Render(in Input, opts Options, tileURL string) []byte {
	styles := make(map[string]AreaStyle, len(in.Areas))
	for _, a := range in.Areas {
		styles[a.ID] = a
	}
	vp := newViewport(in.Center, in.Zoom, opts.MapWidth, opts.MapHeight)

	var side []string
	y := lineHeight
	if opts.ShowLegend {
		var part []string
		part, y = renderLegend(in, opts, styles, y)
		side = append(side, part...)
	}
	if opts.ShowSummary {
		var part []string
		part, y = renderSummary(in, y)
		side = append(side, part...)
	}
	if opts.ShowList {
		var part []string
		part, y = renderList(in, y)
		side = append(side, part...)
	}

	width, height := opts.MapWidth, opts.MapHeight
	if len(side) > 0 {
		width += sidebarGap + sidebarWidth
		if y+lineHeight > height {
			height = y + lineHeight
		}
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif" font-size="12">`+"\n",
		width, height, width, height)

	b.WriteString("<defs>\n")
	if opts.Monochrome {
		for _, d := range patternDefs {
			b.WriteString("  " + d + "\n")
		}
	}
	fmt.Fprintf(&b, `  <clipPath id="map-clip"><rect x="0" y="0" width="%d" height="%d"/></clipPath>`+"\n", opts.MapWidth, opts.MapHeight)
	b.WriteString("</defs>\n")

	b.WriteString(`<g id="map" clip-path="url(#map-clip)">` + "\n")
	fmt.Fprintf(&b, `  <rect x="0" y="0" width="%d" height="%d" fill="#f2efe9"/>`+"\n", opts.MapWidth, opts.MapHeight)
	if tileURL != "" {
		for _, t := range vp.tiles() {
			fmt.Fprintf(&b, `  <image x="%s" y="%s" width="%d" height="%d" xlink:href="%s"/>`+"\n",
				formatFloat(t.px), formatFloat(t.py), tileSize, tileSize, esc(TileURL(tileURL, int(t.Z), int(t.X), int(t.Y))))
		}
	}
	for _, q := range in.Quadras {
		b.WriteString("  " + renderQuadra(q, vp, in, opts, styles) + "\n")
	}
	if in.Labels {
		for _, q := range in.Quadras {
			x, y := vp.project(q.Centroid)
			fmt.Fprintf(&b, `  <text x="%s" y="%s" text-anchor="middle" font-size="9" fill="#222">%s</text>`+"\n",
				formatFloat(x), formatFloat(y), esc(q.Key.Block))
		}
	}
	b.WriteString("</g>\n")

	if len(side) > 0 {
		fmt.Fprintf(&b, `<g id="sidebar" transform="translate(%d,0)">`+"\n", opts.MapWidth+sidebarGap)
		for _, s := range side {
			b.WriteString("  " + s + "\n")
		}
		b.WriteString("</g>\n")
	}
	b.WriteString("</svg>\n")
	return []byte(b.String())
}

func pathData(q *geo.Quadra, vp viewport) string {
	var d strings.Builder
	for _, p := range q.Polygons() {
		if len(p) == 0 {
			continue
		}
		ring := p[0]
		for i, pt := range ring {
			x, y := vp.project(pt)
			if i == 0 {
				d.WriteString("M")
			} else {
				d.WriteString(" L")
			}
			d.WriteString(formatFloat(x) + " " + formatFloat(y))
		}
		d.WriteString(" Z ")
	}
	return strings.TrimSpace(d.String())
}

func fillFor(style AreaStyle, opts Options) string {
	if opts.Monochrome {
		return fmt.Sprintf(`fill="url(#%s)"`, patternID(style.Pattern))
	}
	color := style.Color
	if color == "" {
		color = "#3388ff"
	}
	return fmt.Sprintf(`fill="%s" fill-opacity="0.55"`, esc(color))
}

func renderQuadra(q *geo.Quadra, vp viewport, in Input, opts Options, styles map[string]AreaStyle) string {
	d := pathData(q, vp)
	style := styles[q.Key.Area]
	if !in.Selected.Has(q.Key) {
		return fmt.Sprintf(`<path data-key="%s" d="%s" fill="none" stroke="%s" stroke-width="0.8"/>`,
			esc(q.Key.String()), d, outlineColor)
	}
	stroke := style.Color
	if opts.Monochrome || stroke == "" {
		stroke = monoInk
	}
	return fmt.Sprintf(`<path data-key="%s" d="%s" %s stroke="%s" stroke-width="1.5"/>`,
		esc(q.Key.String()), d, fillFor(style, opts), esc(stroke))
}

func renderLegend(in Input, opts Options, styles map[string]AreaStyle, y int) ([]string, int) {
	out := []string{fmt.Sprintf(`<text x="0" y="%d" font-weight="bold">Legenda</text>`, y)}
	y += lineHeight / 2

	counts := map[string]int{}
	for _, k := range in.Selected.Keys() {
		counts[k.Area]++
	}
	for _, a := range in.Areas {
		out = append(out,
			fmt.Sprintf(`<rect x="0" y="%d" width="24" height="12" %s stroke="#000" stroke-width="0.8"/>`, y, fillFor(styles[a.ID], opts)),
			fmt.Sprintf(`<text x="32" y="%d">Área %s (%d selecionadas)</text>`, y+10, esc(a.ID), counts[a.ID]),
		)
		y += lineHeight
	}
	return out, y + lineHeight
}

func renderSummary(in Input, y int) ([]string, int) {
	s := in.Summary
	out := []string{fmt.Sprintf(`<text x="0" y="%d" font-weight="bold">Resumo</text>`, y)}
	y += lineHeight

	row := func(label, value string) {
		out = append(out,
			fmt.Sprintf(`<text x="0" y="%d">%s</text>`, y, esc(label)),
			fmt.Sprintf(`<text x="%d" y="%d" text-anchor="end">%s</text>`, sidebarWidth, y, esc(value)),
		)
		y += lineHeight
	}
	row("Quadras selecionadas", strconv.Itoa(s.SelectedCount))
	if s.PendingCount > 0 {
		row("Aguardando carregamento", strconv.Itoa(s.PendingCount))
	}
	row("Área total (m²)", strconv.FormatFloat(s.TotalAreaM2, 'f', 2, 64))

	fields := make([]string, 0, len(s.PropertyTotals))
	for f := range s.PropertyTotals {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		row(f, strconv.FormatFloat(s.PropertyTotals[f], 'f', -1, 64))
	}
	row("Total de imóveis", strconv.FormatFloat(s.TotalImoveis, 'f', -1, 64))
	return out, y + lineHeight
}

func renderList(in Input, y int) ([]string, int) {
	out := []string{fmt.Sprintf(`<text x="0" y="%d" font-weight="bold">Quadras</text>`, y)}
	y += lineHeight

	keys := in.Selected.Keys()
	for i := 0; i < len(keys); i += listPerLine {
		end := min(i+listPerLine, len(keys))
		out = append(out, fmt.Sprintf(`<text x="0" y="%d">%s</text>`, y, esc(quadra.Join(keys[i:end]))))
		y += lineHeight
	}
	if len(keys) == 0 {
		out = append(out, fmt.Sprintf(`<text x="0" y="%d" fill="#777">Nenhuma quadra selecionada</text>`, y))
		y += lineHeight
	}
	return out, y
}
