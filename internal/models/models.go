package models

import "time"

// TaskStatus represents the current status of a conversion task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusComplete   TaskStatus = "complete"
	StatusFailed     TaskStatus = "failed"
)

// Task is one input-path-to-output-format conversion unit. It is not
// modified after it has been handed to the worker pool.
type Task struct {
	Index        int    `json:"index"`
	InputPath    string `json:"input_path"`
	OutputFormat string `json:"output_format"`
	OutputDir    string `json:"output_dir,omitempty"`
	FileSize     int64  `json:"file_size"`
}

// Result is the outcome of exactly one Task
type Result struct {
	Task       Task          `json:"task"`
	OutputPath string        `json:"output_path,omitempty"`
	Success    bool          `json:"success"`
	Err        error         `json:"-"`
	Message    string        `json:"error,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Retries    int           `json:"retries,omitempty"`
}

// Failed builds a failed result for task
func Failed(task Task, err error, elapsed time.Duration) Result {
	r := Result{Task: task, Err: err, Elapsed: elapsed}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// StatusUpdate represents a message from a worker about task status
type StatusUpdate struct {
	WorkerID int
	Index    int
	Status   TaskStatus
	Progress int
	Message  string
	Result   *Result
}

// Stats tracks one batch run. It is reset at the start of every run.
type Stats struct {
	RunID          string    `json:"run_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time,omitempty"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	Successful     int       `json:"successful"`
	Failed         int       `json:"failed"`
	TotalFileSize  int64     `json:"total_file_size"`
	Workers        int       `json:"workers"`
}

// HealthStatus is the system load classification
type HealthStatus string

const (
	HealthNormal   HealthStatus = "normal"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Severity orders health values so the worse one compares greater
func (h HealthStatus) Severity() int {
	switch h {
	case HealthCritical:
		return 2
	case HealthWarning:
		return 1
	default:
		return 0
	}
}

// ResourceStatus is a snapshot of host load. Values are copied when handed out.
type ResourceStatus struct {
	CPUPercent       float64      `json:"cpu_percent"`
	MemoryPercent    float64      `json:"memory_percent"`
	DiskPercent      float64      `json:"disk_percent"`
	AvailableWorkers int          `json:"available_workers"`
	Status           HealthStatus `json:"status"`
	SampledAt        time.Time    `json:"sampled_at"`
}

// ProgressPrediction estimates the remaining time of a run
type ProgressPrediction struct {
	Processed       int           `json:"processed"`
	Total           int           `json:"total"`
	AvgTimePerFile  time.Duration `json:"avg_time_per_file"`
	RemainingTime   time.Duration `json:"remaining_time"`
	ProgressPercent float64       `json:"progress_percent"`
}

// RunState is the scheduler lifecycle state
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateStopped   RunState = "stopped"
)

// RunSummary is the aggregate outcome of one StartConversion call
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Format     string        `json:"format"`
	OutputDir  string        `json:"output_dir,omitempty"`
	State      RunState      `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Results    []Result      `json:"results,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}
