package rating

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\n  \"score\": 85,\n  \"reason\": \"solid crypto wordplay\"\n}\n```\nEnjoy!"
	res := Parse(raw)
	require.True(t, res.OK())
	require.Equal(t, 85, res.Parsed.Value)
	require.Equal(t, "solid crypto wordplay", res.Parsed.Reason)
}

func TestParseBareObject(t *testing.T) {
	res := Parse(`{"score": 42, "reason": "mid"}`)
	require.True(t, res.OK())
	require.Equal(t, 42, res.Parsed.Value)
}

func TestParseBracesInsideReason(t *testing.T) {
	// Braces and escaped quotes inside the string must not break the scan.
	res := Parse(`{"score": 70, "reason": "the \"{dip}\" joke lands"}`)
	require.True(t, res.OK())
	require.Equal(t, `the "{dip}" joke lands`, res.Parsed.Reason)
}

func TestParseClamps(t *testing.T) {
	res := Parse(`{"score": 999, "reason": "too generous"}`)
	require.True(t, res.OK())
	require.Equal(t, 100, res.Parsed.Value)

	res = Parse(`{"score": -5, "reason": "harsh"}`)
	require.True(t, res.OK())
	require.Equal(t, 0, res.Parsed.Value)
}

func TestParseFractionalScore(t *testing.T) {
	res := Parse(`{"score": 77.9, "reason": "almost"}`)
	require.True(t, res.OK())
	require.Equal(t, 77, res.Parsed.Value)
}

func TestParseGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here at all",
		"{unterminated",
		`{"score": "not a number", "reason": "nope"}`,
	} {
		res := Parse(raw)
		require.False(t, res.OK(), "input %q", raw)
		require.Equal(t, raw, res.Unparsed)
	}
}
