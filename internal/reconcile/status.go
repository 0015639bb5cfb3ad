package reconcile

import "time"

// State is the coarse condition of the link to the backend.
type State string

const (
	StateUnknown State = "unknown"
	StateReady   State = "ready"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateError   State = "error"
)

// Status is what the client shows about syncing. It never blocks local use.
type Status struct {
	State     State     `json:"state"`
	Message   string    `json:"message"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OK reports whether the last interaction with the backend went through.
func (s Status) OK() bool {
	return s.State != StateError
}

const (
	msgSyncing = "Syncing…"
	msgLoading = "Loading…"
	msgSynced  = "Cloud synced"
	msgReady   = "Cloud ready"
	msgError   = "Cloud error"
	msgNoCloud = "No cloud"
)

func (s *Syncer) setStatus(state State, msg string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
	s.status.Message = msg
	s.status.UpdatedAt = s.now()
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// Status returns the current sync status.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}
