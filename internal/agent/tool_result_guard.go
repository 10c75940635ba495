package agent

import "regexp"

// DefaultMaxToolResultChars is the default size cap applied when a
// ToolResultGuard has Enabled set but no explicit MaxChars.
const DefaultMaxToolResultChars = 64 * 1024

// builtinSecretPatterns catches common secret shapes (API keys, bearer
// tokens, AWS credentials, PEM private keys) regardless of which tool
// produced them, per SPEC_FULL.md's tool-result size guard.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w-.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ToolResultGuard redacts and truncates tool output before it re-enters
// the model's context, per SPEC_FULL.md §4 ("Tool-result size guard").
// A zero value is a no-op.
type ToolResultGuard struct {
	// Enabled turns on the guard even if MaxChars/SanitizeSecrets are
	// left at their zero values; Apply is also active whenever either
	// of those is set.
	Enabled bool

	// MaxChars truncates content beyond this length. 0 means no limit
	// unless Enabled, in which case DefaultMaxToolResultChars applies.
	MaxChars int

	// SanitizeSecrets replaces text matching builtinSecretPatterns with
	// RedactionText.
	SanitizeSecrets bool

	// RedactionText replaces matched secrets. Defaults to "[REDACTED]".
	RedactionText string
}

func (g ToolResultGuard) active() bool {
	return g.Enabled || g.MaxChars > 0 || g.SanitizeSecrets
}

// apply redacts and truncates content for toolName. The tool name is
// accepted for symmetry with a future per-tool policy but is not
// currently consulted.
func (g ToolResultGuard) apply(toolName string, content string) string {
	if !g.active() {
		return content
	}

	redaction := g.RedactionText
	if redaction == "" {
		redaction = "[REDACTED]"
	}

	if g.SanitizeSecrets {
		for _, re := range builtinSecretPatterns {
			content = re.ReplaceAllString(content, redaction)
		}
	}

	maxChars := g.MaxChars
	if maxChars <= 0 && g.Enabled {
		maxChars = DefaultMaxToolResultChars
	}
	if maxChars > 0 && len(content) > maxChars {
		content = content[:maxChars] + "...[truncated]"
	}
	return content
}
