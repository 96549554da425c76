package protocol

import "fmt"

// NormalizeRequest applies the multi-question caps and coerces malformed
// shapes to safe defaults. A caller receiving an error instead of a prompt is
// worse than a degraded-but-answerable prompt, so nothing here rejects input.
func NormalizeRequest(req *Request) {
	if req.Kind == "" {
		if len(req.SubQuestions) > 0 {
			req.Kind = KindMultiQuestion
		} else {
			req.Kind = KindSingleQuestion
		}
	}

	req.Question = Truncate(req.Question, MaxQuestionLen)

	if req.Kind != KindMultiQuestion {
		req.SubQuestions = nil
		return
	}

	if len(req.SubQuestions) > MaxSubQuestions {
		req.SubQuestions = req.SubQuestions[:MaxSubQuestions]
	}

	for i := range req.SubQuestions {
		sq := &req.SubQuestions[i]
		sq.Header = Truncate(sq.Header, MaxHeaderLen)
		if sq.Header == "" {
			sq.Header = fmt.Sprintf("Question %d", i+1)
		}
		sq.Question = Truncate(sq.Question, MaxQuestionLen)
		if len(sq.Options) > MaxOptionsPerSubQ {
			sq.Options = sq.Options[:MaxOptionsPerSubQ]
		}
		kept := sq.Options[:0]
		for _, opt := range sq.Options {
			if opt.Label == "" {
				continue
			}
			opt.Label = Truncate(opt.Label, MaxOptionLabelLen)
			opt.Description = Truncate(opt.Description, MaxOptionDescLen)
			kept = append(kept, opt)
		}
		sq.Options = kept
	}
}

// Truncate cuts s to at most max runes, appending an ellipsis when cut
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
