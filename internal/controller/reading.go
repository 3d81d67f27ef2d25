package controller

import (
	"math"
	"regexp"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// readingCapacity bounds every device's buffer; oldest values are evicted.
const readingCapacity = 10

// ReadingBuffer is a per-device ordered sequence of forward-power readings.
type ReadingBuffer struct {
	values []float64
}

// Append adds v, evicting the oldest value once the buffer is full.
func (b *ReadingBuffer) Append(v float64) {
	b.values = append(b.values, v)
	if len(b.values) > readingCapacity {
		b.values = b.values[len(b.values)-readingCapacity:]
	}
}

// Clear empties the buffer without changing its capacity.
func (b *ReadingBuffer) Clear() {
	b.values = b.values[:0]
}

// Len reports how many readings are currently buffered.
func (b *ReadingBuffer) Len() int {
	return len(b.values)
}

// last3 returns the three most recent readings, oldest first, and whether
// at least three are present.
func (b *ReadingBuffer) last3() (r0, r1, r2 float64, ok bool) {
	n := len(b.values)
	if n < 3 {
		return 0, 0, 0, false
	}
	return b.values[n-3], b.values[n-2], b.values[n-1], true
}

// MeanLast3 averages the three most recent readings.
func (b *ReadingBuffer) MeanLast3() (float64, bool) {
	r0, r1, r2, ok := b.last3()
	if !ok {
		return 0, false
	}
	return stat.Mean([]float64{r0, r1, r2}, nil), true
}

// Stable reports whether the last three readings' successive differences
// are each below tol.
func (b *ReadingBuffer) Stable(tol float64) bool {
	r0, r1, r2, ok := b.last3()
	if !ok {
		return false
	}
	return math.Abs(r2-r1) < tol && math.Abs(r1-r0) < tol
}

// numberPattern matches the first signed decimal number in a line.
var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// firstNumber extracts the first signed decimal number in s, if any.
func firstNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// meanOf averages each device's MeanLast3 over devices whose buffer has at
// least three readings; ok is false if no device qualified.
func meanOf(devices []string, buffers map[string]*ReadingBuffer) (float64, bool) {
	var means []float64
	for _, d := range devices {
		buf, exists := buffers[d]
		if !exists {
			continue
		}
		if m, ok := buf.MeanLast3(); ok {
			means = append(means, m)
		}
	}
	if len(means) == 0 {
		return 0, false
	}
	return stat.Mean(means, nil), true
}
