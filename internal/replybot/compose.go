package replybot

import "fmt"

// ComposeReply renders the outbound reply from a score and its reason. Four
// non-overlapping score tiers, each with its own tone.
func ComposeReply(score int, reason string) string {
	switch {
	case score >= 80:
		return fmt.Sprintf("🔥 %s (%d/100) You're absolutely brilliant! Keep it up!", reason, score)
	case score >= 60:
		return fmt.Sprintf("👍 %s (%d/100) Nice try!", reason, score)
	case score >= 40:
		return fmt.Sprintf("😊 %s (%d/100) Keep going!", reason, score)
	default:
		return fmt.Sprintf("💪 %s (%d/100) Better luck next time!", reason, score)
	}
}
