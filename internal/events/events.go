// Package events is the notification surface between the conversion core and
// whatever presents it (CLI, HTTP/websocket server, tests). Publishing never
// blocks the publisher: each subscriber owns a FIFO mailbox drained by its own
// goroutine, so handlers run off the worker pool and must marshal to their own
// context if they need one.
package events

import (
	"time"

	"audioconv/internal/models"
)

// Kind identifies an event type
type Kind string

const (
	KindProgress           Kind = "progress"
	KindFileProgress       Kind = "file_progress"
	KindStatus             Kind = "status"
	KindError              Kind = "error"
	KindComplete           Kind = "complete"
	KindResourceStatus     Kind = "resource_status"
	KindProgressPrediction Kind = "progress_prediction"
	KindWorkerAdjustment   Kind = "worker_adjustment"
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind       Kind                       `json:"kind"`
	RunID      string                     `json:"run_id,omitempty"`
	Time       time.Time                  `json:"time"`
	Percent    int                        `json:"percent,omitempty"`
	Index      int                        `json:"index,omitempty"`
	Message    string                     `json:"message,omitempty"`
	Success    bool                       `json:"success,omitempty"`
	Resource   *models.ResourceStatus     `json:"resource,omitempty"`
	Prediction *models.ProgressPrediction `json:"prediction,omitempty"`
	Summary    *models.RunSummary         `json:"summary,omitempty"`
}

// Emitter accepts events
type Emitter interface {
	Publish(Event)
}

// Handler consumes events
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }

type discard struct{}

func (discard) Publish(Event) {}

// Discard is an Emitter that drops every event
var Discard Emitter = discard{}

func Progress(runID string, percent int) Event {
	return Event{Kind: KindProgress, RunID: runID, Time: time.Now(), Percent: percent}
}

func FileProgress(runID string, index, percent int) Event {
	return Event{Kind: KindFileProgress, RunID: runID, Time: time.Now(), Index: index, Percent: percent}
}

func Status(runID, message string) Event {
	return Event{Kind: KindStatus, RunID: runID, Time: time.Now(), Message: message}
}

func Error(runID, message string) Event {
	return Event{Kind: KindError, RunID: runID, Time: time.Now(), Message: message}
}

// Complete carries the run summary; the summary is copied.
func Complete(runID string, success bool, summary *models.RunSummary) Event {
	e := Event{Kind: KindComplete, RunID: runID, Time: time.Now(), Success: success}
	if summary != nil {
		s := *summary
		s.Results = append([]models.Result(nil), summary.Results...)
		e.Summary = &s
	}
	return e
}

// ResourceStatus snapshots status by value.
func ResourceStatus(status models.ResourceStatus) Event {
	return Event{Kind: KindResourceStatus, Time: time.Now(), Resource: &status}
}

// WorkerAdjustment is the edge-triggered escalation sent when load turns critical.
func WorkerAdjustment(status models.ResourceStatus) Event {
	return Event{Kind: KindWorkerAdjustment, Time: time.Now(), Resource: &status}
}

func ProgressPrediction(p models.ProgressPrediction) Event {
	return Event{Kind: KindProgressPrediction, Time: time.Now(), Prediction: &p}
}

// Funcs dispatches events to optional callbacks, one per kind.
type Funcs struct {
	OnProgress           func(percent int)
	OnFileProgress       func(index, percent int)
	OnStatus             func(message string)
	OnError              func(message string)
	OnComplete           func(success bool, summary *models.RunSummary)
	OnResourceStatus     func(models.ResourceStatus)
	OnProgressPrediction func(models.ProgressPrediction)
	OnWorkerAdjustment   func(models.ResourceStatus)
}

// HandleEvent implements Handler
func (f Funcs) HandleEvent(e Event) {
	switch e.Kind {
	case KindProgress:
		if f.OnProgress != nil {
			f.OnProgress(e.Percent)
		}
	case KindFileProgress:
		if f.OnFileProgress != nil {
			f.OnFileProgress(e.Index, e.Percent)
		}
	case KindStatus:
		if f.OnStatus != nil {
			f.OnStatus(e.Message)
		}
	case KindError:
		if f.OnError != nil {
			f.OnError(e.Message)
		}
	case KindComplete:
		if f.OnComplete != nil {
			f.OnComplete(e.Success, e.Summary)
		}
	case KindResourceStatus:
		if f.OnResourceStatus != nil && e.Resource != nil {
			f.OnResourceStatus(*e.Resource)
		}
	case KindProgressPrediction:
		if f.OnProgressPrediction != nil && e.Prediction != nil {
			f.OnProgressPrediction(*e.Prediction)
		}
	case KindWorkerAdjustment:
		if f.OnWorkerAdjustment != nil && e.Resource != nil {
			f.OnWorkerAdjustment(*e.Resource)
		}
	}
}
