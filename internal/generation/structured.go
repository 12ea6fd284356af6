package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spachava753/peerlab/internal/models"
)

// StrictSuffix is appended to the user prompt when a structured reply has to
// be requested again.
const StrictSuffix = "\n\nIMPORTANT: your previous reply could not be parsed. Reply with exactly one JSON object and nothing else: no prose, no code fences."

// ExtractJSON returns the first balanced JSON object in text.
func ExtractJSON(text string) (string, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text[start:]); end > 0 {
			candidate := text[start : start+end]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", fmt.Errorf("no JSON object in response: %w", models.ErrMalformedResponse)
}

// matchBrace returns the length of the brace-balanced prefix of s, which must
// start with '{', or -1 if the braces never balance.
func matchBrace(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// Validator is implemented by reply shapes that check their own fields.
type Validator interface {
	Validate() error
}

// Decode extracts the first JSON object from text into a T. If *T implements
// Validator, a validation failure is reported as a malformed response.
func Decode[T any](text string) (T, error) {
	var out T
	raw, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decoding %T: %v: %w", out, err, models.ErrMalformedResponse)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, fmt.Errorf("validating %T: %v: %w", out, err, models.ErrMalformedResponse)
		}
	}
	return out, nil
}

// Structured produces a reply and decodes it into a T. A reply that does not
// decode is requested once more with StrictSuffix appended. The raw text of
// the last reply is returned alongside any error.
func Structured[T any](ctx context.Context, p Producer, prompt Prompt) (T, string, error) {
	var zero T
	raw, err := p.Produce(ctx, prompt)
	if err != nil {
		return zero, raw, err
	}
	out, err := Decode[T](raw)
	if err == nil {
		return out, raw, nil
	}

	strict := prompt
	strict.User += StrictSuffix
	raw, err = p.Produce(ctx, strict)
	if err != nil {
		return zero, raw, err
	}
	out, err = Decode[T](raw)
	if err != nil {
		return zero, raw, err
	}
	return out, raw, nil
}

// ExtractBlock returns the body of the first fenced block tagged tag
// ("```THEME", "```python"). With no such block it returns text trimmed and
// false.
func ExtractBlock(text, tag string) (string, bool) {
	open := "```" + tag
	start := strings.Index(text, open)
	if start < 0 {
		return strings.TrimSpace(text), false
	}
	body := text[start+len(open):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return strings.TrimSpace(text), false
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}
