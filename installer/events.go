package installer

import (
	"context"
	"fmt"
)

// Phase is the stage an Event reports.
type Phase string

const (
	PhaseFetching   Phase = "fetching"
	PhaseVerifying  Phase = "verifying"
	PhaseInstalling Phase = "installing"
	PhaseApplied    Phase = "applied"
	PhaseFailed     Phase = "failed"
	PhaseDone       Phase = "done"
)

// Event is one progress report. Step is 1-based; BytesTotal is -1 when unknown.
type Event struct {
	Phase      Phase
	Step       int
	Total      int
	ArtifactID string
	BytesDone  int64
	BytesTotal int64
	Message    string
	Err        error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d/%d] %s %s: %v", e.Step, e.Total, e.Phase, e.ArtifactID, e.Err)
	}
	return fmt.Sprintf("[%d/%d] %s %s", e.Step, e.Total, e.Phase, e.ArtifactID)
}

// emitter sends events to an optional caller-owned channel. Sends give up when ctx ends.
type emitter struct {
	ch chan<- Event
}

func (em emitter) emit(ctx context.Context, ev Event) {
	if em.ch == nil {
		return
	}
	select {
	case em.ch <- ev:
	case <-ctx.Done():
	}
}

// progressWriter counts bytes written through it and reports them as fetching events.
type progressWriter struct {
	ctx  context.Context
	em   emitter
	base Event
	done int64
	last int64
}

// progressStep is the minimum byte distance between two fetching events.
const progressStep = 256 * 1024

func (w *progressWriter) Write(p []byte) (int, error) {
	w.done += int64(len(p))
	if w.done-w.last >= progressStep || (w.base.BytesTotal > 0 && w.done == w.base.BytesTotal) {
		w.last = w.done
		ev := w.base
		ev.BytesDone = w.done
		w.em.emit(w.ctx, ev)
	}
	return len(p), nil
}
