package ui

import (
	"strings"
)

// Sparkline renders a text-based chart using Unicode block characters. The
// rebuild TUI feeds it throughput samples; the status command renders fixed
// series (audit findings per run) through RenderSeries.
type Sparkline struct {
	samples []float64 // Ring buffer of samples
	width   int       // Display width (number of bars)
	head    int       // Current position in ring buffer
	count   int       // Number of samples added
	max     float64   // Maximum value seen (for scaling)
}

// SparklineChars are the Unicode block characters for rendering sparklines.
// 8 levels of height from empty to full.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a new sparkline with the given display width.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{
		samples: make([]float64, width),
		width:   width,
	}
}

// Add adds a new sample to the sparkline.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % s.width
	s.count++

	if value > s.max {
		s.max = value
	}

	// Recalculate max periodically to handle decreasing values
	if s.count%s.width == 0 {
		s.recalculateMax()
	}
}

// recalculateMax finds the current maximum in the buffer.
func (s *Sparkline) recalculateMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	// Avoid division by zero
	if s.max < 1 {
		s.max = 1
	}
}

// ordered returns the buffered samples oldest-first.
func (s *Sparkline) ordered() []float64 {
	n := min(s.count, s.width)
	out := make([]float64, 0, n)

	start := 0
	if s.count >= s.width {
		start = s.head
	}
	for i := 0; i < n; i++ {
		out = append(out, s.samples[(start+i)%s.width])
	}
	return out
}

// Render returns the sparkline as a string of block characters, padded to
// the configured width.
func (s *Sparkline) Render() string {
	return s.RenderWithWidth(s.width)
}

// RenderWithWidth returns the sparkline at a specific width, keeping the
// most recent samples when they do not all fit. Useful when terminal width
// changes.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width > s.width {
		width = s.width
	}

	if s.count == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}

	if s.max <= 0 {
		s.recalculateMax()
	}

	values := s.ordered()
	if len(values) > width {
		values = values[len(values)-width:]
	}

	var sb strings.Builder
	sb.Grow(width * 3) // UTF-8 block chars are 3 bytes

	for _, v := range values {
		sb.WriteRune(SparklineChars[scaleToChar(v, s.max)])
	}
	// Pad on the right until samples fill the width
	for i := len(values); i < width; i++ {
		sb.WriteRune(' ')
	}

	return sb.String()
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the current maximum value.
func (s *Sparkline) Max() float64 {
	return s.max
}

// RenderSeries renders a fixed series oldest-first, keeping the most recent
// width values. A zero-valued series renders as a flat baseline, so a clean
// audit history reads as a flat line.
func RenderSeries(values []float64, width int) string {
	if width <= 0 {
		width = 60
	}
	if len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	var max float64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max < 1 {
		max = 1
	}

	var sb strings.Builder
	sb.Grow(len(values) * 3)
	for _, v := range values {
		sb.WriteRune(SparklineChars[scaleToChar(v, max)])
	}
	return sb.String()
}

// scaleToChar maps a value in [0, max] to a block character index.
func scaleToChar(value, max float64) int {
	if max <= 0 {
		return 0
	}
	idx := int(value / max * float64(len(SparklineChars)-1))
	if idx < 0 {
		return 0
	}
	if idx >= len(SparklineChars) {
		return len(SparklineChars) - 1
	}
	return idx
}
