package pipeline

import (
	"context"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// Each phase owns a fixed slice of the global progress bar, so per-phase
// local percentages map onto a monotonically increasing overall value.
type phaseWindow struct {
	lo, hi int
}

var phaseWindows = map[models.Phase]phaseWindow{
	models.PhaseInit:       {0, 10},
	models.PhaseExtracting: {10, 20},
	models.PhaseSplitting:  {20, 50},
	models.PhaseUploading:  {60, 80},
	models.PhaseLinking:    {85, 92},
	models.PhaseFinalizing: {95, 100},
}

// emitter pushes progress events onto the caller's channel. A nil channel
// discards events; a cancelled context never blocks the send.
type emitter struct {
	ch chan<- models.ProgressEvent
}

// emit reports item done-of-total within the phase's window. total <= 0 marks
// a phase-boundary event at the window's start.
func (e *emitter) emit(ctx context.Context, phase models.Phase, done, total int, message string) {
	if e.ch == nil {
		return
	}

	w := phaseWindows[phase]
	percent := w.lo
	if total > 0 {
		if done > total {
			done = total
		}
		percent = w.lo + (w.hi-w.lo)*done/total
	}
	if phase == models.PhaseDone {
		percent = 100
	}

	select {
	case e.ch <- models.ProgressEvent{Phase: phase, Percent: percent, Message: message}:
	case <-ctx.Done():
	}
}
