package viz

import (
	"fmt"
	"math"
	"strings"
)

const (
	defaultStripHeight = 8
	axisLabelWidth     = 8
)

// RenderStrip draws one metric as a character plot. Every strip rendered for
// the same window puts the same time in the same column, so stacked strips
// line up the way the graphical panels do.
func RenderStrip(s Strip, width, height int) string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = defaultStripHeight
	}
	cols := max(width-axisLabelWidth-2, 10)
	w0, w1 := s.Window[0], s.Window[1]

	var b strings.Builder
	fmt.Fprintf(&b, "%s  [%s .. %s]\n", s.Label, formatMs(w0), formatMs(w1))
	if !(w1 > w0) {
		b.WriteString("  (no time domain)\n")
		return b.String()
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", cols))
	}

	col := func(t float64) int {
		return int(math.Round((t - w0) / (w1 - w0) * float64(cols-1)))
	}
	row := func(v float64) int {
		if !(s.Hi > s.Lo) {
			return height - 1
		}
		r := int(math.Round((s.Hi - v) / (s.Hi - s.Lo) * float64(height-1)))
		return min(max(r, 0), height-1)
	}

	for _, p := range s.Points {
		if p.T < w0 || p.T > w1 || math.IsNaN(p.V) {
			continue
		}
		grid[row(p.V)][col(p.T)] = '*'
	}

	for i, line := range grid {
		label := ""
		switch i {
		case 0:
			label = formatValue(s.Hi)
		case height - 1:
			label = formatValue(s.Lo)
		}
		fmt.Fprintf(&b, "%*s |%s\n", axisLabelWidth, label, string(line))
	}

	markers := []rune(strings.Repeat(" ", cols))
	var names []string
	for _, m := range s.Markers {
		if m.T < w0 || m.T > w1 {
			continue
		}
		markers[col(m.T)] = markerRune(m.Kind)
		names = append(names, fmt.Sprintf("%c %s @ %s", markerRune(m.Kind), m.Label, formatMs(m.T)))
	}
	fmt.Fprintf(&b, "%*s +%s\n", axisLabelWidth, "", string(markers))
	if s.Empty {
		fmt.Fprintf(&b, "%*s  (no samples)\n", axisLabelWidth, "")
	}
	for _, n := range names {
		fmt.Fprintf(&b, "%*s  %s\n", axisLabelWidth, "", n)
	}
	return b.String()
}

func markerRune(kind string) rune {
	switch kind {
	case "start":
		return 'S'
	case "end":
		return 'E'
	}
	return '|'
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e7 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
