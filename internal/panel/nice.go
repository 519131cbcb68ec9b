package panel

import (
	"fmt"
	"math"
	"strconv"
)

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// tickIncrement returns a 1-2-5 step for roughly count intervals over
// [start, stop]. Negative results encode steps below one as -1/step so that
// tick values can be computed without accumulating float error.
func tickIncrement(start, stop float64, count int) float64 {
	step := (stop - start) / math.Max(0, float64(count))
	power := math.Floor(math.Log10(step))
	e := step / math.Pow(10, power)
	factor := 1.0
	switch {
	case e >= e10:
		factor = 10
	case e >= e5:
		factor = 5
	case e >= e2:
		factor = 2
	}
	if power >= 0 {
		return factor * math.Pow(10, power)
	}
	return -math.Pow(10, -power) / factor
}

// Nice extends [lo, hi] outward to round tick multiples. An empty interval
// is widened to [lo, lo+1] first.
func Nice(lo, hi float64, count int) (float64, float64) {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 1
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == lo {
		hi = lo + 1
	}
	if count <= 0 {
		count = 10
	}

	var prestep float64
	for i := 0; i < 10; i++ {
		step := tickIncrement(lo, hi, count)
		if step == prestep {
			break
		}
		switch {
		case step > 0:
			lo = math.Floor(lo/step) * step
			hi = math.Ceil(hi/step) * step
		case step < 0:
			lo = math.Ceil(lo*step) / step
			hi = math.Floor(hi*step) / step
		default:
			return lo, hi
		}
		prestep = step
	}
	return lo, hi
}

// Ticks returns round tick values inside [lo, hi].
func Ticks(lo, hi float64, count int) []float64 {
	if !(hi > lo) || count <= 0 {
		return nil
	}
	step := tickIncrement(lo, hi, count)
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil
	}
	var out []float64
	if step > 0 {
		for i := math.Ceil(lo / step); i <= math.Floor(hi/step); i++ {
			out = append(out, i*step)
		}
	} else {
		inv := -step
		for i := math.Ceil(lo * inv); i <= math.Floor(hi*inv); i++ {
			out = append(out, i/inv)
		}
	}
	return out
}

// formatTick prints a tick value with as few decimals as needed.
func formatTick(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTimeTick(ms float64) string {
	return fmt.Sprintf("%sms", formatTick(ms))
}
