package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies what applying an event did to the buffer.
type Outcome int

const (
	// Applied means the buffer changed.
	Applied Outcome = iota
	// Dropped means the event referred to no open turn and was discarded.
	Dropped
	// Ignored means the event is not a buffer transition (errors, unknown kinds).
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Dropped:
		return "dropped"
	default:
		return "ignored"
	}
}

// Effects are the side effects the caller must carry out after Apply.
type Effects struct {
	Outcome Outcome
	// TurnID is the id of the entry that was created, extended or completed.
	TurnID string
	// Superseded is the id of an open entry discarded by a new agent_start.
	Superseded string
	// Resync is set when a turn completed and the snapshot should be re-read.
	Resync bool
	// AgentError carries the text of an error event for the reporter.
	AgentError string
}

// State is the per-agent stream buffer. It is a value: Apply never mutates
// its input, so a State can be shared with readers once published.
type State struct {
	entries []StreamingMessage
}

// NewTurnID returns an id unique per turn. UUIDv7 embeds the creation instant,
// so ids for the same agent are also time ordered.
func NewTurnID(agentName string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return agentName + ":" + id.String()
}

// Entries returns a copy of the buffered turns in creation order.
func (s State) Entries() []StreamingMessage {
	out := make([]StreamingMessage, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s State) Len() int {
	return len(s.entries)
}

// Open returns the incomplete turn for agentName, if any.
func (s State) Open(agentName string) (StreamingMessage, bool) {
	if i := s.openIndex(agentName); i >= 0 {
		return s.entries[i], true
	}
	return StreamingMessage{}, false
}

func (s State) openIndex(agentName string) int {
	for i := range s.entries {
		if s.entries[i].AgentName == agentName && !s.entries[i].IsComplete {
			return i
		}
	}
	return -1
}

func indexByID(entries []StreamingMessage, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Apply runs one ingest transition and returns the next state.
func Apply(s State, ev Event, now time.Time) (State, Effects) {
	switch ev.Type {
	case KindAgentStart:
		next := make([]StreamingMessage, 0, len(s.entries)+1)
		var superseded string
		for _, e := range s.entries {
			// an open turn for the same agent means agent_end was lost
			if e.AgentName == ev.AgentName && !e.IsComplete {
				superseded = e.ID
				continue
			}
			next = append(next, e)
		}
		turn := StreamingMessage{
			ID:        NewTurnID(ev.AgentName),
			AgentName: ev.AgentName,
			StartedAt: now,
		}
		next = append(next, turn)
		return State{entries: next}, Effects{Outcome: Applied, TurnID: turn.ID, Superseded: superseded}

	case KindContent:
		open := s.openIndex(ev.AgentName)
		if open < 0 {
			return s, Effects{Outcome: Dropped}
		}
		id := s.entries[open].ID
		next := s.Entries()
		next[indexByID(next, id)].Content += ev.Content
		return State{entries: next}, Effects{Outcome: Applied, TurnID: id}

	case KindAgentEnd:
		open := s.openIndex(ev.AgentName)
		if open < 0 {
			return s, Effects{Outcome: Dropped}
		}
		next := s.Entries()
		next[open].IsComplete = true
		return State{entries: next}, Effects{Outcome: Applied, TurnID: next[open].ID, Resync: true}

	case KindError:
		return s, Effects{Outcome: Ignored, AgentError: ev.Error}

	default:
		return s, Effects{Outcome: Ignored}
	}
}

// Prune drops completed turns whose utterance is already present in the
// snapshot. Open turns are never pruned.
func Prune(s State, snapshot []ChatMessage) State {
	if len(s.entries) == 0 {
		return s
	}

	persisted := make(map[utteranceKey]struct{}, len(snapshot))
	for _, m := range snapshot {
		persisted[keyOf(m.AgentName, m.Content)] = struct{}{}
	}

	next := make([]StreamingMessage, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := persisted[keyOf(e.AgentName, e.Content)]; ok && e.IsComplete {
			continue
		}
		next = append(next, e)
	}
	return State{entries: next}
}
