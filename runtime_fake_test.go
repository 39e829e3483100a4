package autopilot

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/deepnoodle-ai/autopilot/hooks"
)

// fakeTurn scripts one session turn of the fake runtime.
type fakeTurn struct {
	events  []*Event
	result  *Result
	openErr error
}

// turnWithResult scripts a turn that emits only a final result.
func turnWithResult(result *Result) fakeTurn {
	return fakeTurn{result: result}
}

// completedTurn scripts a turn whose result text embeds a completed payload.
func completedTurn(summary string) fakeTurn {
	return turnWithResult(&Result{
		Text: fmt.Sprintf("```json\n{\"status\": \"complete\", \"summary\": %q}\n```", summary),
	})
}

// fakeRuntime plays back scripted turns in order. It honors the request's
// interceptor the way a real runtime must: denied tool calls never yield
// their scripted result, the denial reason is observed instead.
type fakeRuntime struct {
	mutex    sync.Mutex
	turns    []fakeTurn
	requests []SessionRequest
	observed []ToolResult
	sessions int
}

func newFakeRuntime(turns ...fakeTurn) *fakeRuntime {
	return &fakeRuntime{turns: turns}
}

func (f *fakeRuntime) OpenSession(ctx context.Context, req SessionRequest) (EventStream, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.requests = append(f.requests, req)
	if len(f.turns) == 0 {
		return nil, fmt.Errorf("no scripted turn for session request")
	}
	turn := f.turns[0]
	f.turns = f.turns[1:]
	if turn.openErr != nil {
		return nil, turn.openErr
	}

	result := &Result{}
	if turn.result != nil {
		copied := *turn.result
		result = &copied
	}
	if result.SessionID == "" {
		if req.SessionID != "" {
			result.SessionID = req.SessionID
		} else {
			f.sessions++
			result.SessionID = fmt.Sprintf("sess_%d", f.sessions)
		}
	}

	return &fakeStream{
		runtime:     f,
		interceptor: req.Interceptor,
		events:      turn.events,
		result:      result,
		calls:       map[string]*ToolCall{},
		denied:      map[string]string{},
	}, nil
}

// callCount returns how many sessions were opened.
func (f *fakeRuntime) callCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.requests)
}

// observedResults returns the tool results delivered to the agent.
func (f *fakeRuntime) observedResults() []ToolResult {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]ToolResult, len(f.observed))
	copy(out, f.observed)
	return out
}

func (f *fakeRuntime) recordObserved(result ToolResult) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.observed = append(f.observed, result)
}

type fakeStream struct {
	runtime     *fakeRuntime
	interceptor ToolInterceptor
	events      []*Event
	result      *Result
	calls       map[string]*ToolCall
	denied      map[string]string
	index       int
	resultSent  bool
	closed      bool
}

func (s *fakeStream) Next(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		if s.index >= len(s.events) {
			if !s.resultSent {
				s.resultSent = true
				return &Event{Type: EventResult, Result: s.result}, nil
			}
			return nil, io.EOF
		}
		event := s.events[s.index]
		s.index++

		switch event.Type {
		case EventToolCall:
			call := event.ToolCall
			s.calls[call.ID] = call
			if s.interceptor != nil {
				if decision := s.interceptor.PreToolUse(ctx, call); decision.Action == hooks.ActionDeny {
					s.denied[call.ID] = decision.Reason
				}
			}
			return event, nil
		case EventToolResult:
			result := event.ToolResult
			if reason, ok := s.denied[result.ToolID]; ok {
				result = &ToolResult{ToolID: result.ToolID, Content: reason, IsError: true}
			} else if s.interceptor != nil {
				s.interceptor.PostToolUse(ctx, s.calls[result.ToolID], result)
			}
			s.runtime.recordObserved(*result)
			return &Event{Type: EventToolResult, ToolResult: result}, nil
		default:
			return event, nil
		}
	}
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}
