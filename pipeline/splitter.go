package pipeline

import "strings"

// Splitter defaults
const (
	DefaultChunkTarget   = 1000
	DefaultChunkOverlap  = 180
	DefaultMinBreakPoint = 200
)

// Splitter cuts rendered unit text into bounded, overlapping fragments.
// Lengths are counted in runes.
type Splitter struct {
	Target   int
	Overlap  int
	MinBreak int
}

// NewSplitter returns a splitter with the default bounds
func NewSplitter() Splitter {
	return Splitter{Target: DefaultChunkTarget, Overlap: DefaultChunkOverlap, MinBreak: DefaultMinBreakPoint}
}

// Split returns the trimmed, non-empty fragments of text in order.
// Text no longer than the target comes back as a single fragment.
func (s Splitter) Split(text string) []string {
	target, overlap := s.Target, s.Overlap
	if target <= 0 {
		target = DefaultChunkTarget
	}
	if overlap < 0 || overlap >= target {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= target {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	var out []string
	for start := 0; start < len(runes); {
		end := start + target
		if end >= len(runes) {
			end = len(runes)
		} else if brk := s.breakPoint(runes[start:end]); brk > 0 {
			end = start + brk
		}

		if fragment := strings.TrimSpace(string(runes[start:end])); fragment != "" {
			out = append(out, fragment)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint returns the cut position just after the later of the last
// paragraph break and the last sentence end, or 0 when that lies too early
func (s Splitter) breakPoint(window []rune) int {
	w := string(window)
	para := strings.LastIndex(w, "\n\n")
	sentence := strings.LastIndex(w, ". ")
	brk := para
	if sentence > brk {
		brk = sentence
	}
	if brk < 0 {
		return 0
	}
	pos := len([]rune(w[:brk]))
	if pos <= s.MinBreak {
		return 0
	}
	return pos + 1
}
