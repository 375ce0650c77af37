package events

import (
	"sync"
	"testing"
	"time"

	"audioconv/internal/models"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) HandleEvent(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	bus.Subscribe(c)

	for i := 0; i <= 100; i++ {
		bus.Publish(Progress("run", i))
	}
	bus.Close()

	got := c.snapshot()
	if len(got) != 101 {
		t.Fatalf("got %d events, want 101", len(got))
	}
	for i, e := range got {
		if e.Percent != i {
			t.Fatalf("event %d has percent %d", i, e.Percent)
		}
	}
}

func TestBusPublishDoesNotBlockOnSlowHandler(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	bus.Subscribe(HandlerFunc(func(Event) { <-release }))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Status("run", "tick"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked behind a slow handler")
	}
	close(release)
	bus.Close()
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	unsubscribe := bus.Subscribe(c)
	bus.Publish(Status("run", "first"))
	unsubscribe()
	bus.Publish(Status("run", "second"))
	bus.Close()

	for _, e := range c.snapshot() {
		if e.Message == "second" {
			t.Fatal("received event after unsubscribe")
		}
	}
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	bus.Subscribe(HandlerFunc(func(Event) { panic("boom") }))
	bus.Subscribe(c)
	bus.Publish(Error("run", "x"))
	bus.Publish(Error("run", "y"))
	bus.Close()

	if got := len(c.snapshot()); got != 2 {
		t.Fatalf("healthy subscriber got %d events, want 2", got)
	}
}

func TestFuncsDispatch(t *testing.T) {
	var progress, completeCalls int
	var status string
	var workers int
	f := Funcs{
		OnProgress: func(p int) { progress = p },
		OnStatus:   func(m string) { status = m },
		OnComplete: func(bool, *models.RunSummary) { completeCalls++ },
		OnWorkerAdjustment: func(r models.ResourceStatus) {
			workers = r.AvailableWorkers
		},
	}

	f.HandleEvent(Progress("r", 40))
	f.HandleEvent(Status("r", "converting"))
	f.HandleEvent(Complete("r", true, nil))
	f.HandleEvent(WorkerAdjustment(models.ResourceStatus{AvailableWorkers: 1, Status: models.HealthCritical}))
	f.HandleEvent(Error("r", "ignored, no callback"))

	if progress != 40 || status != "converting" || completeCalls != 1 || workers != 1 {
		t.Fatalf("progress=%d status=%q complete=%d workers=%d", progress, status, completeCalls, workers)
	}
}

func TestResourceStatusEventIsACopy(t *testing.T) {
	live := models.ResourceStatus{CPUPercent: 10, Status: models.HealthNormal}
	e := ResourceStatus(live)
	live.CPUPercent = 99
	if e.Resource.CPUPercent != 10 {
		t.Fatalf("event observed live mutation: %v", e.Resource.CPUPercent)
	}
}

func TestCompleteCopiesResults(t *testing.T) {
	summary := &models.RunSummary{Results: []models.Result{{Success: true}}}
	e := Complete("r", true, summary)
	summary.Results[0].Success = false
	if !e.Summary.Results[0].Success {
		t.Fatal("complete event shares result slice with caller")
	}
}

func TestSnapshotKeepsLatest(t *testing.T) {
	var s Snapshot
	s.HandleEvent(Progress("r", 10))
	s.HandleEvent(Progress("r", 70))
	s.HandleEvent(ResourceStatus(models.ResourceStatus{AvailableWorkers: 3}))
	s.HandleEvent(ProgressPrediction(models.ProgressPrediction{Processed: 2, Total: 4}))

	v := s.View()
	if v.Progress != 70 {
		t.Errorf("Progress = %d", v.Progress)
	}
	if v.Resource == nil || v.Resource.AvailableWorkers != 3 {
		t.Errorf("Resource = %+v", v.Resource)
	}
	if v.Prediction == nil || v.Prediction.Total != 4 {
		t.Errorf("Prediction = %+v", v.Prediction)
	}
}
