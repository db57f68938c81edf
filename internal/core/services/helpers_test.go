package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTracer() *TraceCollector {
	return NewTraceCollector(testLogger(), nil, nil)
}

// scriptedLLM replays canned responses in order. A nil entry yields an
// error for that call.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     [][]domain.ChatMessage
}

func (s *scriptedLLM) next() (string, error) {
	if len(s.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	var err error
	if len(s.errs) > 0 {
		err = s.errs[0]
		s.errs = s.errs[1:]
	}
	return resp, err
}

func (s *scriptedLLM) Complete(_ context.Context, messages []domain.ChatMessage, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messages)
	return s.next()
}

func (s *scriptedLLM) Stream(ctx context.Context, messages []domain.ChatMessage, maxTokens int, onDelta func(string)) (string, error) {
	resp, err := s.Complete(ctx, messages, maxTokens)
	if err != nil {
		return "", err
	}
	onDelta(resp)
	return resp, nil
}

// staticPrompts serves every prompt name with a fixed instruction text.
type staticPrompts struct{}

func (staticPrompts) Get(name string) (string, error) {
	return "You are the " + name + " component. Reply as instructed.", nil
}

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	mu        sync.Mutex
	messages  map[string][]domain.MemoryMessage
	summaries map[string]string
	settings  map[string]string
	traces    map[domain.TraceID]*domain.Trace
}

func newMemRepo() *memRepo {
	return &memRepo{
		messages:  make(map[string][]domain.MemoryMessage),
		summaries: make(map[string]string),
		settings:  make(map[string]string),
		traces:    make(map[domain.TraceID]*domain.Trace),
	}
}

func (r *memRepo) AddMessage(_ context.Context, msg domain.MemoryMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ThreadID] = append(r.messages[msg.ThreadID], msg)
	return nil
}

func (r *memRepo) ListRecent(_ context.Context, threadID string, limit int) ([]domain.MemoryMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.MemoryMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *memRepo) CountMessages(_ context.Context, threadID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[threadID]), nil
}

func (r *memRepo) GetSummary(_ context.Context, threadID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaries[threadID], nil
}

func (r *memRepo) UpsertSummary(_ context.Context, threadID, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[threadID] = summary
	return nil
}

func (r *memRepo) SaveTrace(_ context.Context, trace *domain.Trace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces[trace.ID] = trace
	return nil
}

func (r *memRepo) ListTraces(_ context.Context, _ int) ([]domain.TraceSummary, error) {
	return []domain.TraceSummary{}, nil
}

func (r *memRepo) GetTrace(_ context.Context, id domain.TraceID) (*domain.Trace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[id]
	if !ok {
		return nil, fmt.Errorf("trace not found: %s", id)
	}
	return t, nil
}

func (r *memRepo) GetSetting(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings[key], nil
}

func (r *memRepo) SaveSetting(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}
