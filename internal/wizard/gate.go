package wizard

import "velvet-metal/internal/domain/model"

// Blocker says why the terminal action is disabled.
type Blocker string

const (
	BlockerNone           Blocker = ""
	BlockerNoServices     Blocker = "no_services"
	BlockerSyncInProgress Blocker = "sync_in_progress"
)

// Gate is the completion decision for a set of connections.
type Gate struct {
	Blocker Blocker
	Pending []model.Service
}

// Enabled reports whether the user may leave the wizard.
func (g Gate) Enabled() bool { return g.Blocker == BlockerNone }

// Message is the hint rendered next to the disabled button.
func (g Gate) Message() string {
	switch g.Blocker {
	case BlockerNoServices:
		return "Connect at least one service to continue."
	case BlockerSyncInProgress:
		return "Hang tight, we're still importing your library."
	default:
		return ""
	}
}

// CompletionGate evaluates the connections reported by the store.
func CompletionGate(conns []*model.ServiceConnection) Gate {
	if len(conns) == 0 {
		return Gate{Blocker: BlockerNoServices}
	}
	var pending []model.Service
	for _, c := range conns {
		if c.Syncing() {
			pending = append(pending, c.Service)
		}
	}
	if len(pending) > 0 {
		return Gate{Blocker: BlockerSyncInProgress, Pending: pending}
	}
	return Gate{}
}

// CanComplete is shorthand for CompletionGate(conns).Enabled().
func CanComplete(conns []*model.ServiceConnection) bool {
	return CompletionGate(conns).Enabled()
}

// AnySyncing reports whether any connection still has a pending import.
func AnySyncing(conns []*model.ServiceConnection) bool {
	for _, c := range conns {
		if c.Syncing() {
			return true
		}
	}
	return false
}
