// Package sbfl holds externally computed fault-localization scores so a
// front-end can color the lines a trace visits.
package sbfl

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Score is the suspiciousness of one source line, in [0, 1].
type Score struct {
	Line  int     `yaml:"line"`
	Value float64 `yaml:"score"`
}

// Scores maps a class path (com/company/Main) to its line scores.
type Scores map[string][]Score

// LoadFile reads scores from a YAML file of the form
//
//	com/company/Main:
//	  - line: 13
//	    score: 0.5
func LoadFile(path string) (Scores, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scores: %w", err)
	}
	var s Scores
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scores: %w", err)
	}
	for class, lines := range s {
		for _, l := range lines {
			if l.Value < 0 || l.Value > 1 {
				return nil, fmt.Errorf("score for %s:%d out of range: %v", class, l.Line, l.Value)
			}
		}
	}
	return s.normalize(), nil
}

// normalize rekeys dotted class names to class paths.
func (s Scores) normalize() Scores {
	out := make(Scores, len(s))
	for class, lines := range s {
		key := classPath(class)
		out[key] = append(out[key], lines...)
	}
	return out
}

func classPath(class string) string {
	return strings.ReplaceAll(class, ".", "/")
}

// Lookup returns the score of a line. class may be dotted or a class path.
func (s Scores) Lookup(class string, line int) (float64, bool) {
	for _, sc := range s[classPath(class)] {
		if sc.Line == line {
			return sc.Value, true
		}
	}
	return 0, false
}

// Ranked returns all lines of a class, most suspicious first.
func (s Scores) Ranked(class string) []Score {
	lines := append([]Score(nil), s[classPath(class)]...)
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Value != lines[j].Value {
			return lines[i].Value > lines[j].Value
		}
		return lines[i].Line < lines[j].Line
	})
	return lines
}
