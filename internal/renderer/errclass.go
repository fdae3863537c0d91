package renderer

import (
	"strings"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// classifyError maps a raw runtime error to a human-readable note and the
// terminal status it implies.
func classifyError(raw string) (string, model.TurnStatus) {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "abort") || strings.Contains(lower, "cancel"):
		return "turn aborted", model.TurnAborted
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api key") ||
		strings.Contains(lower, "authentication") || strings.Contains(lower, "401"):
		return "provider authentication failed; check the runtime's credentials", model.TurnFailed
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return "provider rate limited; try again shortly", model.TurnFailed
	case strings.Contains(lower, "overloaded") || strings.Contains(lower, "529"):
		return "provider overloaded; try again shortly", model.TurnFailed
	case strings.Contains(lower, "max_tokens") || strings.Contains(lower, "output length") ||
		strings.Contains(lower, "too long"):
		return "response hit the output length limit", model.TurnFailed
	case raw == "":
		return "assistant error", model.TurnFailed
	default:
		return "assistant error: " + raw, model.TurnFailed
	}
}
