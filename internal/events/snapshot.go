package events

import (
	"sync"

	"audioconv/internal/models"
)

// Snapshot is a Handler that remembers the latest event of each kind, for
// status queries that arrive between broadcasts.
type Snapshot struct {
	mu         sync.RWMutex
	progress   int
	status     string
	lastError  string
	resource   *models.ResourceStatus
	prediction *models.ProgressPrediction
	summary    *models.RunSummary
}

// HandleEvent implements Handler
func (s *Snapshot) HandleEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case KindProgress:
		s.progress = e.Percent
	case KindStatus:
		s.status = e.Message
	case KindError:
		s.lastError = e.Message
	case KindResourceStatus, KindWorkerAdjustment:
		if e.Resource != nil {
			r := *e.Resource
			s.resource = &r
		}
	case KindProgressPrediction:
		if e.Prediction != nil {
			p := *e.Prediction
			s.prediction = &p
		}
	case KindComplete:
		s.summary = e.Summary
	}
}

// View is a copy of the remembered values
type View struct {
	Progress   int                        `json:"progress"`
	Status     string                     `json:"status,omitempty"`
	LastError  string                     `json:"last_error,omitempty"`
	Resource   *models.ResourceStatus     `json:"resource,omitempty"`
	Prediction *models.ProgressPrediction `json:"prediction,omitempty"`
	LastRun    *models.RunSummary         `json:"last_run,omitempty"`
}

// View returns a copy of the latest values
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{Progress: s.progress, Status: s.status, LastError: s.lastError, LastRun: s.summary}
	if s.resource != nil {
		r := *s.resource
		v.Resource = &r
	}
	if s.prediction != nil {
		p := *s.prediction
		v.Prediction = &p
	}
	return v
}
