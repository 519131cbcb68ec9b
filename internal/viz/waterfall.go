package viz

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxSpanRows     = 50
	defaultBarWidth = 30
)

// Waterfall renders an ASCII span waterfall over the window [t0, t1] ms.
// Spans outside the window are skipped; bars are clipped to it.
// Width controls the total line width; 0 uses a sensible default (80).
func Waterfall(spans []SpanRow, t0, t1 float64, width int) string {
	if len(spans) == 0 || !(t1 > t0) {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	var rows []SpanRow
	for _, s := range spans {
		if max(s.EndMs, s.StartMs) < t0 || s.StartMs > t1 {
			continue
		}
		rows = append(rows, s)
	}
	if len(rows) == 0 {
		return ""
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StartMs < rows[j].StartMs
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Spans (%d in %s..%s)\n", len(rows), formatMs(t0), formatMs(t1))

	overflow := 0
	if len(rows) > maxSpanRows {
		overflow = len(rows) - maxSpanRows
		rows = rows[:maxSpanRows]
	}

	// Pass 1: widest duration string, for a consistent right edge
	maxDurLen := 0
	for _, s := range rows {
		maxDurLen = max(maxDurLen, len(formatMs(max(s.EndMs, s.StartMs)-s.StartMs)))
	}

	// Pass 2: render rows
	for _, s := range rows {
		renderSpanRow(&b, s, t0, t1, width, maxDurLen)
	}

	if overflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more spans\n", overflow)
	}

	return b.String()
}

func renderSpanRow(b *strings.Builder, s SpanRow, t0, t1 float64, width, maxDurLen int) {
	label := s.Name
	if s.OpName != "" {
		label += " (" + s.OpName + ")"
	}

	// Layout: " " + label + " [" + bar + "] " + dur
	fixedCols := 1 + 2 + defaultBarWidth + 2 + maxDurLen
	labelBudget := max(width-fixedCols, 8)
	if len([]rune(label)) > labelBudget {
		label = string([]rune(label)[:labelBudget-1]) + "…"
	}
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-len([]rune(label))))

	end := max(s.EndMs, s.StartMs)
	bar := buildBar(s.StartMs, end, t0, t1, defaultBarWidth)
	dur := formatMs(end - s.StartMs)

	fmt.Fprintf(b, " %s [%s] %s\n", paddedLabel, bar, dur)
}

func buildBar(start, end, t0, t1 float64, barWidth int) string {
	span := t1 - t0
	startPos := int((max(start, t0) - t0) / span * float64(barWidth))
	endPos := int((min(end, t1)-t0)/span*float64(barWidth) + 0.999)

	if startPos >= barWidth {
		startPos = barWidth - 1
	}
	// Ensure at least 1 char active
	endPos = max(endPos, startPos+1)
	endPos = min(endPos, barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

func formatMs(ms float64) string {
	if ms < 1 && ms > 0 {
		return fmt.Sprintf("%.0fµs", ms*1000)
	}
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}
