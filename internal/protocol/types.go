package protocol

import (
	"time"
)

// RequestKind distinguishes the two shapes of human-input request
type RequestKind string

const (
	KindSingleQuestion RequestKind = "single_question"
	KindMultiQuestion  RequestKind = "multi_question"
)

// Caps applied to multi-question payloads before anything is displayed.
// Oversized input is truncated, never rejected.
const (
	MaxSubQuestions   = 10
	MaxHeaderLen      = 50
	MaxQuestionLen    = 2000
	MaxOptionLabelLen = 200
	MaxOptionDescLen  = 500
	MaxOptionsPerSubQ = 20
	MaxChoiceLabelLen = 40
	MaxChoiceShortLen = 20
)

// Sentinel messages recorded on entries that terminate without a real answer
const (
	SentinelOperatorCancelled = "Cancelled by operator"
	SentinelRestartInterrupt  = "Interrupted by restart"
	SentinelShutdown          = "Cancelled: engine shutting down"
	SentinelCallerAbandoned   = "Cancelled: caller stopped waiting"
)

// Request is a caller's demand for human input
type Request struct {
	ID              string        `json:"id"`
	Kind            RequestKind   `json:"kind"`
	Question        string        `json:"question,omitempty"`
	Context         string        `json:"context,omitempty"`
	ExplicitChoices []Choice      `json:"explicit_choices,omitempty"`
	SubQuestions    []SubQuestion `json:"sub_questions,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Choice is a selectable option derived from (or supplied with) a question.
// Value is the literal string handed back to the caller when selected.
type Choice struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	ShortLabel string `json:"short_label,omitempty"`
}

// SubQuestion is one item of a multi-question request
type SubQuestion struct {
	Header        string   `json:"header"`
	Question      string   `json:"question"`
	Options       []Option `json:"options,omitempty"`
	MultiSelect   bool     `json:"multi_select,omitempty"`
	AllowFreeform bool     `json:"allow_freeform,omitempty"`
}

// Option is a selectable entry within a sub-question
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// SubAnswer is the human's answer to one sub-question
type SubAnswer struct {
	Header   string   `json:"header"`
	Selected []string `json:"selected,omitempty"`
	Freeform string   `json:"freeform,omitempty"`
}

// Result is what a suspended caller receives when its request terminates.
// Cancellation is a normal, inspectable outcome, never an error.
type Result struct {
	Value       string      `json:"value"`
	Queue       bool        `json:"queue"`
	Attachments []string    `json:"attachments,omitempty"`
	Cancelled   bool        `json:"cancelled,omitempty"`
	SubAnswers  []SubAnswer `json:"sub_answers,omitempty"`
}

// NotificationKind tags engine-to-channel push messages
type NotificationKind string

const (
	NotifyRequestOpened NotificationKind = "request_opened"
	NotifyRequestClosed NotificationKind = "request_closed"
	NotifyBacklogDepth  NotificationKind = "backlog_depth"
	NotifyProcessing    NotificationKind = "processing"
)

// Notification is pushed identically to every channel endpoint
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	RequestID    string           `json:"request_id,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
	Context      string           `json:"context,omitempty"`
	Choices      []Choice         `json:"choices,omitempty"`
	Approval     bool             `json:"approval,omitempty"`
	SubQuestions []SubQuestion    `json:"sub_questions,omitempty"`
	Status       string           `json:"status,omitempty"`
	Depth        int              `json:"depth,omitempty"`
	Processing   bool             `json:"processing,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// ResolutionKind tags channel-to-engine messages
type ResolutionKind string

const (
	ResolutionAnswer       ResolutionKind = "resolve"
	ResolutionAnswerMulti  ResolutionKind = "resolve_multi"
	ResolutionCancelActive ResolutionKind = "cancel_active"
	ResolutionQueueAnswer  ResolutionKind = "queue_answer"
	ResolutionQueuePause   ResolutionKind = "queue_pause"
	ResolutionQueueResume  ResolutionKind = "queue_resume"
)

// Resolution is sent by a channel endpoint on behalf of the human operator
type Resolution struct {
	Kind        ResolutionKind `json:"kind"`
	RequestID   string         `json:"request_id,omitempty"`
	Answer      string         `json:"answer,omitempty"`
	Attachments []string       `json:"attachments,omitempty"`
	SubAnswers  []SubAnswer    `json:"sub_answers,omitempty"`
	Cancelled   bool           `json:"cancelled,omitempty"`
}
