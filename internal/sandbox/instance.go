package sandbox

import (
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Sentinel errors
var (
	ErrProvisioning = errors.New("sandbox provisioning failed")
	ErrNotReady     = errors.New("sandbox not ready")
)

// State is the lifecycle position of an Instance.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateReady
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Instance is one disposable database engine owned by a single benchmark run.
type Instance struct {
	RunID        string
	Name         string
	RootPassword string
	Database     string

	mu          sync.Mutex
	state       State
	reserved    bool
	containerID string
	hostPort    int
	candidates  []Endpoint
	endpoint    Endpoint
	db          *sqlx.DB
}

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// DB returns the engine connection. It fails unless the instance is Ready.
func (i *Instance) DB() (*sqlx.DB, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateReady || i.db == nil {
		return nil, ErrNotReady
	}
	return i.db, nil
}

func (i *Instance) ContainerID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.containerID
}

func (i *Instance) HostPort() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hostPort
}

func (i *Instance) Endpoint() Endpoint {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.endpoint
}

func (i *Instance) Candidates() []Endpoint {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Endpoint(nil), i.candidates...)
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

func (i *Instance) setLaunched(containerID string, hostPort int) {
	i.mu.Lock()
	i.containerID = containerID
	i.hostPort = hostPort
	i.state = StateStarting
	i.mu.Unlock()
}

func (i *Instance) setReady(ep Endpoint, candidates []Endpoint, db *sqlx.DB) {
	i.mu.Lock()
	i.endpoint = ep
	i.candidates = candidates
	i.db = db
	i.state = StateReady
	i.mu.Unlock()
}
