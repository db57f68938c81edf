package domain

import (
	"fmt"
	"math/rand"
	"time"
)

// ValidationStatus is the outcome class of the input validation phase.
type ValidationStatus string

const (
	ValidationValid              ValidationStatus = "valid"
	ValidationInvalid            ValidationStatus = "invalid"
	ValidationNeedsClarification ValidationStatus = "needs_clarification"
	ValidationOffTopic           ValidationStatus = "off_topic"
)

// InputValidation is the result of the input validation phase.
type InputValidation struct {
	Status                 ValidationStatus `json:"status"`
	IsSafe                 bool             `json:"is_safe"`
	IsClear                bool             `json:"is_clear"`
	IsRelevant             bool             `json:"is_relevant"`
	Reason                 string           `json:"reason,omitempty"`
	SuggestedClarification string           `json:"suggested_clarification,omitempty"`
}

// Entity is a concrete thing the user mentioned (station, product, time range).
type Entity struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Context string `json:"context,omitempty"`
}

// IntentAnalysis is the result of the understanding phase.
type IntentAnalysis struct {
	PrimaryIntent    string   `json:"primary_intent"`
	Entities         []Entity `json:"entities,omitempty"`
	Constraints      []string `json:"constraints,omitempty"`
	RequiresLiveData bool     `json:"requires_live_data"`
	Confidence       float64  `json:"confidence"`
	Summary          string   `json:"summary,omitempty"`
}

// ToolPlanItem is a single pre-committed tool call in the legacy execution plan.
type ToolPlanItem struct {
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Purpose  string         `json:"purpose,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

// ToolResult is the structured outcome of one tool invocation.
type ToolResult struct {
	ToolName        string  `json:"tool_name"`
	Success         bool    `json:"success"`
	Data            any     `json:"data,omitempty"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

// ReActStep is one Reason→Act→Observe step.
// Action "finish" is the designated terminal signal.
type ReActStep struct {
	Iteration   int            `json:"iteration"`
	Thought     string         `json:"thought,omitempty"`
	Action      string         `json:"action,omitempty"`
	ActionInput map[string]any `json:"action_input,omitempty"`
	Observation string         `json:"observation,omitempty"`
	ParseError  bool           `json:"parse_error,omitempty"`
}

// OutputValidation scores the gathered data before synthesis.
type OutputValidation struct {
	IsComplete  bool     `json:"is_complete"`
	IsAccurate  bool     `json:"is_accurate"`
	IsSafe      bool     `json:"is_safe"`
	Confidence  float64  `json:"confidence"`
	MissingInfo []string `json:"missing_info,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// TimelineEntry is one audit-trail record. The timeline is append-only;
// only the final entry's message may be rewritten when the answer lands.
type TimelineEntry struct {
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	DataKeys  []string  `json:"data_keys,omitempty"`
}

// RunState carries everything a single question accumulates on its way
// through the pipeline. Phases fill their own fields additively; no phase
// deletes another phase's data. The struct is not retained after the
// answer is produced; only the memory store persists history.
type RunState struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`

	InputValidation *InputValidation `json:"input_validation,omitempty"`
	Intent          *IntentAnalysis  `json:"intent,omitempty"`

	ToolPlan          []ToolPlanItem `json:"tool_plan"`
	ExecutionStrategy string         `json:"execution_strategy"`

	ReactEnabled       bool        `json:"react_enabled"`
	ReActSteps         []ReActStep `json:"react_steps"`
	ReactIteration     int         `json:"react_iteration"`
	ReactMaxIterations int         `json:"react_max_iterations"`

	ToolResults  map[string]ToolResult `json:"tool_results"`
	Observations []string              `json:"observations"`

	OutputValidation *OutputValidation `json:"output_validation,omitempty"`

	Steps        []string        `json:"steps"`
	Timeline     []TimelineEntry `json:"timeline"`
	Data         map[string]any  `json:"data"`
	CurrentPhase string          `json:"current_phase"`
}

// DefaultMaxIterations bounds the ReAct loop independent of model behavior.
const DefaultMaxIterations = 5

// NewRunState builds the initial state for one run/stream cycle.
// A thread ID is generated when the caller has none.
func NewRunState(question, threadID string) *RunState {
	if threadID == "" {
		threadID = NewThreadID()
	}
	return &RunState{
		Question:           question,
		ThreadID:           threadID,
		ToolPlan:           []ToolPlanItem{},
		ExecutionStrategy:  "sequential",
		ReactEnabled:       true,
		ReActSteps:         []ReActStep{},
		ReactMaxIterations: DefaultMaxIterations,
		ToolResults:        map[string]ToolResult{},
		Observations:       []string{},
		Steps:              []string{},
		Timeline:           []TimelineEntry{},
		Data:               map[string]any{},
		CurrentPhase:       "input_validation",
	}
}

// RecordStep appends a timeline entry and mirrors it into the human-readable
// step log.
func (s *RunState) RecordStep(phase, message string, dataKeys ...string) {
	s.Timeline = append(s.Timeline, TimelineEntry{
		Phase:     phase,
		Message:   message,
		Timestamp: time.Now().UTC(),
		DataKeys:  dataKeys,
	})
	s.Steps = append(s.Steps, fmt.Sprintf("[%s] %s", phase, message))
	s.CurrentPhase = phase
}

// Answer returns the synthesized answer, if one has been stored.
func (s *RunState) Answer() string {
	if a, ok := s.Data["answer"].(string); ok {
		return a
	}
	return ""
}

// SetAnswer stores the final answer under the legacy data alias.
func (s *RunState) SetAnswer(answer string) {
	s.Data["answer"] = answer
}

const threadAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewThreadID generates a conversation thread identifier
// (thread-<millis>-<7 random chars>).
func NewThreadID() string {
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = threadAlphabet[rand.Intn(len(threadAlphabet))]
	}
	return fmt.Sprintf("thread-%d-%s", time.Now().UnixMilli(), suffix)
}
