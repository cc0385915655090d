package rating

import (
	"encoding/json"
	"strings"
)

// Result is what the model's output parsed into. Exactly one variant is set.
type Result struct {
	Parsed   *Score
	Unparsed string
}

// Score is the well-formed shape the prompt asks for.
type Score struct {
	Value  int    `json:"score"`
	Reason string `json:"reason"`
}

// OK reports whether the output parsed as a score/reason pair.
func (r Result) OK() bool { return r.Parsed != nil }

// Parse extracts a {score, reason} object from model output. Code fences and
// surrounding prose are tolerated; anything else becomes the Unparsed
// variant. Scores are clamped to [0,100].
func Parse(text string) Result {
	candidate := extractObject(text)
	if candidate == "" {
		return Result{Unparsed: text}
	}
	var s struct {
		Score  json.Number `json:"score"`
		Reason string      `json:"reason"`
	}
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return Result{Unparsed: text}
	}
	f, err := s.Score.Float64()
	if err != nil {
		return Result{Unparsed: text}
	}
	v := int(f)
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return Result{Parsed: &Score{Value: v, Reason: s.Reason}}
}

// extractObject returns the first balanced {...} block in text, or "".
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
