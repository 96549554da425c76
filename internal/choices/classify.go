package choices

import (
	"regexp"
	"strings"

	"github.com/iambrandonn/parley/internal/protocol"
)

// Classification is the renderable affordance for a question: either a set of
// extracted choices, or a binary approval flag. They are mutually exclusive.
type Classification struct {
	Choices  []protocol.Choice
	Approval bool
}

// Classify runs extraction first; approval classification is only consulted
// when no choices were found.
func Classify(text string) Classification {
	if cs := Extract(text); len(cs) > 0 {
		return Classification{Choices: cs}
	}
	return Classification{Approval: IsApproval(text)}
}

// approvalLengthThreshold is the size below which a question with no
// interrogative opener is assumed to be a yes/no prompt
const approvalLengthThreshold = 100

var (
	interrogativeRe = regexp.MustCompile(`(?i)^\s*(what|which|where|when|why|how|who|whose)\b`)

	// Patterns that mark a question as requiring specific input, never a
	// bare yes/no
	openEndedRe      = regexp.MustCompile(`(?i)\b(please\s+)?(provide|specify|describe|explain|enter|type|paste|list|name)\b`)
	selectPhrasingRe = regexp.MustCompile(`(?i)\b(select\s+(an?\s+)?option|select\s+from|choose\s+(one|from|between)|pick\s+(one|from)|options?\s*:)`)
	asciiMenuRe      = regexp.MustCompile(`(?m)^\s*[|│┌└├┐┘┤]`)

	// Positive yes/no and permission phrasings
	auxiliaryOpenerRe = regexp.MustCompile(`(?i)^\s*(should|shall|can|could|would|will|do|does|did|is|are|was|were|may|might|am)\b`)
	permissionRe      = regexp.MustCompile(`(?i)\b(yes\s+or\s+no|yes/no|y/n|proceed|continue|approve|confirm|go\s+ahead|are\s+you\s+sure|ok(ay)?\s+to|permission\s+to|(shall|should|may|can)\s+i\b|would\s+you\s+like(\s+me)?\s+to|do\s+you\s+want(\s+me)?\s+to)`)
)

// IsApproval reports whether a question should render a binary yes/no
// affordance. Negative patterns always win over positive ones.
func IsApproval(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if requiresSpecificInput(t) {
		return false
	}
	if auxiliaryOpenerRe.MatchString(t) || permissionRe.MatchString(t) {
		return true
	}
	return len([]rune(t)) < approvalLengthThreshold && !interrogativeRe.MatchString(t)
}

func requiresSpecificInput(t string) bool {
	if openEndedRe.MatchString(t) {
		return true
	}
	if selectPhrasingRe.MatchString(t) {
		return true
	}
	// Multi-choice enumerations belong to the extractor, not approval
	if len(numberedMarkerRe.FindAllStringIndex(t, -1)) >= 2 {
		return true
	}
	if len(letteredMarkerRe.FindAllStringIndex(t, -1)) >= 2 {
		return true
	}
	if len(asciiMenuRe.FindAllStringIndex(t, -1)) >= 2 {
		return true
	}
	return false
}
