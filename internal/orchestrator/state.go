package orchestrator

import "context"

// State is the derived service state. It is recomputed from live queries on
// every invocation and never cached or persisted; a stored status flag would
// only go stale.
type State int

const (
	// Absent means no container with the reserved name exists.
	Absent State = iota
	// StoppedArtifact means the container exists but is not running.
	StoppedArtifact
	// Running means the container is up.
	Running
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case StoppedArtifact:
		return "stopped"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// DeriveState computes the current state from the container engine.
func (o *Orchestrator) DeriveState(ctx context.Context) (State, error) {
	artifact, err := o.containers.FindArtifact(ctx)
	if err != nil {
		return Absent, err
	}
	if artifact == nil {
		return Absent, nil
	}
	if artifact.Running {
		return Running, nil
	}
	return StoppedArtifact, nil
}
