// Package choices derives one-tap answer affordances from free-form question
// text. Extraction is an ordered list of independent pattern matchers; the
// first matcher that produces a result wins. Choices never replace free-text
// input, they only sit alongside it.
package choices

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/iambrandonn/parley/internal/protocol"
)

// MaxChoices bounds every matcher. A set larger than this is discarded
// outright rather than truncated: showing a partial menu is worse than
// showing none.
const MaxChoices = 9

// candidate is a matcher's raw output before labels are sized for display
type candidate struct {
	value string
	label string
}

type matcher func(text string) []candidate

// Ordered by precedence; the first non-empty result wins
var matchers = []matcher{
	matchNumberedLines,
	matchNumberedInline,
	matchKeycapLines,
	matchKeycapInline,
	matchLetteredLines,
	matchLetteredInline,
	matchBulletLines,
	matchBulletInline,
	matchLabeledOptions,
	matchCommaList,
}

var (
	numberedMarkerRe = regexp.MustCompile(`(?:^|\s)\(?\d{1,2}[.)]\s`)
	letteredMarkerRe = regexp.MustCompile(`(?:^|\s)\(?[A-Za-z][.)]\s`)
	questionBlockRe  = regexp.MustCompile(`(?mi)^\s*question\s+\d+\s*:`)
)

// Extract turns question text into zero or more selectable choices
func Extract(text string) []protocol.Choice {
	if isCompound(text) {
		return nil
	}
	for _, m := range matchers {
		cands := m(text)
		if len(cands) == 0 {
			continue
		}
		if len(cands) > MaxChoices {
			return nil
		}
		return finalize(cands)
	}
	return nil
}

// isCompound detects long-form or multi-part prompts that are unsuited to
// button affordances: ≥10 numbered or lettered markers, or ≥2 "Question N:"
// blocks
func isCompound(text string) bool {
	if len(numberedMarkerRe.FindAllStringIndex(text, -1)) >= 10 {
		return true
	}
	if len(letteredMarkerRe.FindAllStringIndex(text, -1)) >= 10 {
		return true
	}
	if len(questionBlockRe.FindAllStringIndex(text, -1)) >= 2 {
		return true
	}
	return false
}

// lineHit is one matched list item, positioned for run grouping
type lineHit struct {
	line  int
	seq   int
	value string
	label string
}

// firstContiguousRun groups hits into runs and returns the first run of at
// least two items. A run breaks when the sequence restarts (seq is not
// prev+1) or when more than maxGap lines separate consecutive items. Later
// runs are typically example content rather than the actual menu.
func firstContiguousRun(hits []lineHit, maxGap int) []lineHit {
	var run []lineHit
	for _, h := range hits {
		if len(run) > 0 {
			prev := run[len(run)-1]
			if h.seq != prev.seq+1 || h.line-prev.line > maxGap {
				if len(run) >= 2 {
					return run
				}
				run = run[:0]
			}
		}
		run = append(run, h)
	}
	if len(run) >= 2 {
		return run
	}
	return nil
}

func runToCandidates(run []lineHit) []candidate {
	cands := make([]candidate, 0, len(run))
	for _, h := range run {
		cands = append(cands, candidate{value: h.value, label: h.label})
	}
	return cands
}

// --- Numbered lists ---

var numberedLineRe = regexp.MustCompile(`^\s*(?:\*\*)?\s*(\d{1,2})[.)]\s*(?:\*\*)?\s*(.+?)\s*$`)

func matchNumberedLines(text string) []candidate {
	var hits []lineHit
	for i, ln := range strings.Split(text, "\n") {
		m := numberedLineRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		hits = append(hits, lineHit{line: i, seq: n, value: m[1], label: cleanLabel(m[2])})
	}
	return runToCandidates(firstContiguousRun(hits, 5))
}

var inlineNumberRe = regexp.MustCompile(`(\d{1,2})[.)]\s*`)

func matchNumberedInline(text string) []candidate {
	for _, ln := range strings.Split(text, "\n") {
		locs := inlineNumberRe.FindAllStringSubmatchIndex(ln, -1)
		if len(locs) < 2 {
			continue
		}
		cands := inlineCandidates(ln, locs, func(marker string) (int, string, bool) {
			n, err := strconv.Atoi(marker)
			return n, marker, err == nil
		})
		if len(cands) >= 2 {
			return cands
		}
	}
	return nil
}

// --- Keycap-emoji lists (digit followed by the enclosing keycap marks) ---

var (
	keycapLineRe   = regexp.MustCompile(`^\s*([0-9])\x{FE0F}?\x{20E3}\s*(.+?)\s*$`)
	keycapInlineRe = regexp.MustCompile(`([0-9])\x{FE0F}?\x{20E3}\s*`)
)

func matchKeycapLines(text string) []candidate {
	var hits []lineHit
	for i, ln := range strings.Split(text, "\n") {
		m := keycapLineRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		hits = append(hits, lineHit{line: i, seq: n, value: m[1], label: cleanLabel(m[2])})
	}
	return runToCandidates(firstContiguousRun(hits, 5))
}

func matchKeycapInline(text string) []candidate {
	for _, ln := range strings.Split(text, "\n") {
		locs := keycapInlineRe.FindAllStringSubmatchIndex(ln, -1)
		if len(locs) < 2 {
			continue
		}
		cands := inlineCandidates(ln, locs, func(marker string) (int, string, bool) {
			n, err := strconv.Atoi(marker)
			return n, marker, err == nil
		})
		if len(cands) >= 2 {
			return cands
		}
	}
	return nil
}

// --- Lettered lists ---

var letteredLineRe = regexp.MustCompile(`^\s*\(?([A-Za-z])[.)]\s+(.+?)\s*$`)

func matchLetteredLines(text string) []candidate {
	var hits []lineHit
	for i, ln := range strings.Split(text, "\n") {
		m := letteredLineRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		hits = append(hits, lineHit{line: i, seq: letterSeq(m[1]), value: m[1], label: cleanLabel(m[2])})
	}
	return runToCandidates(firstContiguousRun(hits, 3))
}

var inlineLetterRe = regexp.MustCompile(`\(?([A-Za-z])[.)]\s*`)

func matchLetteredInline(text string) []candidate {
	for _, ln := range strings.Split(text, "\n") {
		locs := inlineLetterRe.FindAllStringSubmatchIndex(ln, -1)
		if len(locs) < 2 {
			continue
		}
		cands := inlineCandidates(ln, locs, func(marker string) (int, string, bool) {
			return letterSeq(marker), marker, true
		})
		if len(cands) >= 2 {
			return cands
		}
	}
	return nil
}

// letterSeq maps a/A→1, b/B→2 so the shared run grouping applies to letters
func letterSeq(s string) int {
	c := strings.ToLower(s)[0]
	return int(c-'a') + 1
}

// --- Bullet lists ---

var bulletLineRe = regexp.MustCompile(`^\s*[-*•]\s+(.+?)\s*$`)

func matchBulletLines(text string) []candidate {
	var hits []lineHit
	seq := 0
	for i, ln := range strings.Split(text, "\n") {
		m := bulletLineRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		seq++
		label := cleanLabel(m[1])
		hits = append(hits, lineHit{line: i, seq: seq, value: label, label: label})
	}
	// Synthetic seq numbers always increment, so only the line gap breaks runs
	return runToCandidates(firstContiguousRun(hits, 2))
}

var bulletInlineSplitRe = regexp.MustCompile(`\s+[-–—]\s+`)

// matchBulletInline handles single-line prompts like
// "Which color? - red - green - blue"
func matchBulletInline(text string) []candidate {
	for _, ln := range strings.Split(text, "\n") {
		anchor := strings.IndexAny(ln, "?:")
		if anchor < 0 {
			continue
		}
		tail := ln[anchor+1:]
		parts := bulletInlineSplitRe.Split(tail, -1)
		if len(parts) < 2 {
			continue
		}
		var cands []candidate
		for _, p := range parts {
			p = strings.TrimSpace(strings.TrimLeft(p, "-–— "))
			if p == "" {
				continue
			}
			cands = append(cands, candidate{value: p, label: p})
		}
		if len(cands) >= 2 {
			return cands
		}
	}
	return nil
}

// --- Labeled options ("Option A:", "Option 12:") ---

var labeledOptionRe = regexp.MustCompile(`(?i)\boption\s+([A-Za-z0-9]{1,3})\s*:\s*([^\n.;]+)`)

func matchLabeledOptions(text string) []candidate {
	ms := labeledOptionRe.FindAllStringSubmatch(text, -1)
	if len(ms) < 2 {
		return nil
	}
	var cands []candidate
	for _, m := range ms {
		cands = append(cands, candidate{value: m[1], label: cleanLabel(m[2])})
	}
	return cands
}

// --- Comma-conjunction lists after a trigger verb ---

var commaTriggerRe = regexp.MustCompile(`(?i)\b(choose|pick|select|prefer|want|use|between|recommend)\b`)

const maxCommaItemLen = 60

func matchCommaList(text string) []candidate {
	loc := commaTriggerRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	tail := text[loc[1]:]
	if i := strings.IndexAny(tail, "?\n"); i >= 0 {
		tail = tail[:i]
	}
	tail = strings.TrimLeft(tail, ": ")
	if !strings.Contains(tail, ",") {
		return nil
	}

	parts := strings.Split(tail, ",")
	// The final segment must carry the "or" conjunction; a comma series
	// without one is ordinary prose, not a menu
	last := parts[len(parts)-1]
	halves := strings.SplitN(" "+last, " or ", 2)
	if len(halves) != 2 {
		return nil
	}
	parts = append(parts[:len(parts)-1], halves[0], halves[1])

	var cands []candidate
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimSuffix(p, ".")
		if p == "" {
			continue
		}
		if len([]rune(p)) > maxCommaItemLen {
			return nil
		}
		cands = append(cands, candidate{value: p, label: p})
	}
	if len(cands) < 2 {
		return nil
	}
	return cands
}

// --- Shared helpers ---

// inlineCandidates slices one logical line into labels between markers.
// seqOf validates the marker and yields its position in the sequence; the
// whole line is rejected unless markers are sequential starting at the first.
func inlineCandidates(ln string, locs [][]int, seqOf func(string) (int, string, bool)) []candidate {
	var cands []candidate
	expect := -1
	for i, loc := range locs {
		marker := ln[loc[2]:loc[3]]
		seq, value, ok := seqOf(marker)
		if !ok {
			return nil
		}
		if expect != -1 && seq != expect {
			return nil
		}
		expect = seq + 1

		end := len(ln)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		label := strings.Trim(strings.TrimSpace(ln[loc[1]:end]), ",;–—- \t")
		label = strings.TrimSuffix(label, " or")
		if label == "" {
			return nil
		}
		cands = append(cands, candidate{value: value, label: cleanLabel(label)})
	}
	return cands
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "**")
	s = strings.TrimSuffix(s, "**")
	return strings.TrimSpace(s)
}

var shortLabelSeps = []string{" — ", " – ", " - ", ": ", ":"}

func finalize(cands []candidate) []protocol.Choice {
	out := make([]protocol.Choice, 0, len(cands))
	for _, c := range cands {
		out = append(out, protocol.Choice{
			Label:      protocol.Truncate(c.label, protocol.MaxChoiceLabelLen),
			Value:      c.value,
			ShortLabel: shortLabel(c.label),
		})
	}
	return out
}

// shortLabel prefers the keyword before a dash/colon separator, so
// "Yes — because the tests pass" renders as "Yes" on a small button
func shortLabel(label string) string {
	for _, sep := range shortLabelSeps {
		i := strings.Index(label, sep)
		if i <= 0 {
			continue
		}
		head := strings.TrimSpace(label[:i])
		if head != "" && len([]rune(head)) <= protocol.MaxChoiceShortLen {
			return head
		}
		break
	}
	return protocol.Truncate(label, protocol.MaxChoiceShortLen)
}
