package client

import "time"

// Settings mirrors the daemon's system settings.
type Settings struct {
	RecordsDir  string    `json:"records_dir"`
	MinFreeGB   float64   `json:"min_free_gb"`
	Relocation  string    `json:"relocation"`
	StoragePool string    `json:"storage_pool"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoopStatus is the control loop snapshot.
type LoopStatus struct {
	RecordsDir string    `json:"records_dir"`
	Settings   Settings  `json:"settings"`
	LastTick   time.Time `json:"last_tick"`
}

// RecorderStatus describes one capture subprocess.
type RecorderStatus struct {
	SourceID  int64     `json:"source_id"`
	Source    string    `json:"source"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	Dir       string    `json:"dir"`
}

// Status is the response of GET /status.
type Status struct {
	Loop      LoopStatus       `json:"loop"`
	Recorders []RecorderStatus `json:"recorders"`
}

// Segment is one recorded file.
type Segment struct {
	Path  string    `json:"path"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Size  int64     `json:"size"`
}

// ErrorResponse is returned by the daemon on failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
