package engine

import "context"

// eventBufferSize is the channel buffer used by Run.
const eventBufferSize = 128

// Listener receives session events in order: zero or more OnProgress calls
// followed by exactly one OnFinished.
type Listener interface {
	OnProgress(line string)
	OnFinished(result Result)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Progress func(line string)
	Finished func(result Result)
}

func (l ListenerFuncs) OnProgress(line string) {
	if l.Progress != nil {
		l.Progress(line)
	}
}

func (l ListenerFuncs) OnFinished(result Result) {
	if l.Finished != nil {
		l.Finished(result)
	}
}

// Relay dispatches events to l until the channel is closed and returns the
// result carried by the completion event.
func Relay(events <-chan ProcessLine, l Listener) Result {
	var result Result
	for ev := range events {
		if ev.IsComplete {
			result = ev.Result
			l.OnFinished(result)
			continue
		}
		l.OnProgress(ev.Line)
	}
	return result
}

// Run starts the session and relays its events to l on the calling
// goroutine, returning once the session has finished.
func (s *Session) Run(ctx context.Context, l Listener) (Result, error) {
	events := make(chan ProcessLine, eventBufferSize)
	if err := s.Start(ctx, events); err != nil {
		return Result{}, err
	}
	return Relay(events, l), nil
}
