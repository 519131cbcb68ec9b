package viz

import (
	"fmt"
	"strings"
)

// RunSummary renders alignment details and per-metric sample bars.
func RunSummary(stats RunStats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run (%s, %d events, %d spans)\n", formatMs(stats.DomainMs), stats.EventCount, stats.SpanCount)

	align := stats.Mode
	if stats.Confidence != "" {
		align += ", " + stats.Confidence
	}
	fmt.Fprintf(&b, "  Alignment: %s (origin: %s)\n", align, stats.OriginSource)
	if stats.AlignmentError != "" {
		fmt.Fprintf(&b, "  ✗ trace overlay disabled: %s\n", stats.AlignmentError)
	}
	for _, n := range stats.Notes {
		fmt.Fprintf(&b, "  · %s\n", n)
	}

	if len(stats.Metrics) == 0 {
		return b.String()
	}

	maxCount := 0
	for _, m := range stats.Metrics {
		maxCount = max(maxCount, m.Samples)
	}
	b.WriteString("Metrics\n")
	for _, m := range stats.Metrics {
		writeBar(&b, m.Key, m.Samples, maxCount)
		if m.Samples > 0 {
			fmt.Fprintf(&b, "           range %s .. %s\n", formatValue(m.Min), formatValue(m.Max))
		}
	}

	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = count * barWidth / capacity
	}
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 1 && count > 0 {
		filled = 1
	}

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	if len(label) > 14 {
		label = label[:13] + "…"
	}
	paddedLabel := fmt.Sprintf("%-14s", label)
	fmt.Fprintf(b, "  %s [%s]  %s samples\n", paddedLabel, bar, formatCount(count))
}

func formatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1_000_000, (n%1_000_000)/1000, n%1000)
}
