package lifecycle

// Stage names the checkpoints a start passes through.
type Stage string

const (
	StageInstalling Stage = "installing"
	StageBuilding   Stage = "building"
	StageReady      Stage = "ready"
)

// EventKind classifies manager notifications.
type EventKind int

const (
	EventProgress EventKind = iota
	EventStarted
	EventStartFailed
	EventStopped
	EventExited
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventStarted:
		return "started"
	case EventStartFailed:
		return "start-failed"
	case EventStopped:
		return "stopped"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is posted on the manager's queue for the presentation layer to drain.
type Event struct {
	Service string
	Kind    EventKind
	Stage   Stage // set for EventProgress
	PID     int
	Err     error
}

// eventQueueSize bounds the queue; publishing never blocks.
const eventQueueSize = 64
