package observability

import (
	"sync"
	"time"
)

// State is the conversation loop state reported on the health endpoint.
type State string

const (
	StateIdle           State = "IDLE"
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateStreaming      State = "STREAMING"
	StateDone           State = "DONE"
	StateErrored        State = "ERRORED"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentState  State
	Detail        string
	ActiveRuns    int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentState:  StateIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(state State, detail string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentState = state
	globalStatus.Detail = detail
}

// BeginRun and EndRun count conversation loops in flight.
func BeginRun() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.ActiveRuns++
}

func EndRun() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if globalStatus.ActiveRuns > 0 {
		globalStatus.ActiveRuns--
	}
}

// Snapshot is a copy of the status safe to serialize.
type Snapshot struct {
	State         State     `json:"state"`
	Detail        string    `json:"detail,omitempty"`
	ActiveRuns    int       `json:"active_runs"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() Snapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return Snapshot{
		State:         globalStatus.CurrentState,
		Detail:        globalStatus.Detail,
		ActiveRuns:    globalStatus.ActiveRuns,
		LastHeartbeat: globalStatus.LastHeartbeat,
	}
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
