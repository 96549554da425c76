package channel

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/iambrandonn/parley/internal/protocol"
)

// Console prints notifications as transcript lines on a local writer
type Console struct {
	w  io.Writer
	mu sync.Mutex
}

// NewConsole creates a console endpoint writing to w
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Name identifies the endpoint in logs
func (c *Console) Name() string {
	return "console"
}

// Deliver prints one notification
func (c *Console) Deliver(n protocol.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, Format(n))
}

// Format renders a notification as a transcript line
func Format(n protocol.Notification) string {
	switch n.Kind {
	case protocol.NotifyRequestOpened:
		var b strings.Builder
		fmt.Fprintf(&b, "[question] %s", n.Prompt)
		if n.Context != "" {
			fmt.Fprintf(&b, "\n  context: %s", n.Context)
		}
		if n.Approval {
			b.WriteString("\n  (yes/no)")
		}
		for i, c := range n.Choices {
			label := c.Label
			if c.ShortLabel != "" && c.ShortLabel != c.Label {
				label = fmt.Sprintf("%s (%s)", c.Label, c.ShortLabel)
			}
			fmt.Fprintf(&b, "\n  %d. %s", i+1, label)
		}
		for _, sq := range n.SubQuestions {
			fmt.Fprintf(&b, "\n  %s: %s", sq.Header, sq.Question)
			for _, opt := range sq.Options {
				fmt.Fprintf(&b, "\n    - %s", opt.Label)
			}
		}
		return b.String()

	case protocol.NotifyRequestClosed:
		return fmt.Sprintf("[%s] request %s", n.Status, n.RequestID)

	case protocol.NotifyBacklogDepth:
		return fmt.Sprintf("[backlog] %d waiting", n.Depth)

	case protocol.NotifyProcessing:
		if n.Processing {
			return "[processing] agent working"
		}
		return "[processing] idle"

	default:
		return fmt.Sprintf("[%s]", n.Kind)
	}
}
