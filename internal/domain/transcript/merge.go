package transcript

import (
	"sort"
	"strconv"
)

// utteranceKey identifies an utterance when no server id exists. Two distinct
// messages with the same agent and text collapse into one; the wire protocol
// carries nothing better to tell them apart.
type utteranceKey struct {
	agent   string
	content string
}

func keyOf(agentName, content string) utteranceKey {
	return utteranceKey{agent: agentName, content: content}
}

// SnapshotMessageID is the view id of the i-th snapshot message.
func SnapshotMessageID(i int) string {
	return "snapshot:" + strconv.Itoa(i)
}

// Merge reconciles the authoritative snapshot with buffered turns into one
// deduplicated view ordered by timestamp. Snapshot entries come first in the
// concatenation, so on equal timestamps they sort before streamed entries and
// win the dedup.
func Merge(snapshot []ChatMessage, entries []StreamingMessage) []ConversationMessage {
	all := make([]ConversationMessage, 0, len(snapshot)+len(entries))

	for i, m := range snapshot {
		role := m.Role
		if role == "" {
			role = RoleAssistant
		}
		all = append(all, ConversationMessage{
			ID:         SnapshotMessageID(i),
			Role:       role,
			AgentName:  m.AgentName,
			Content:    m.Content,
			IsComplete: true,
			Timestamp:  m.Timestamp.Time,
		})
	}

	for _, e := range entries {
		all = append(all, ConversationMessage{
			ID:         e.ID,
			Role:       RoleAssistant,
			AgentName:  e.AgentName,
			Content:    e.Content,
			IsComplete: e.IsComplete,
			Timestamp:  e.StartedAt,
		})
	}

	seenIDs := make(map[string]struct{}, len(all))
	seenUtterances := make(map[utteranceKey]struct{}, len(all))
	view := all[:0]
	for _, m := range all {
		key := keyOf(m.AgentName, m.Content)
		if _, dup := seenIDs[m.ID]; dup {
			continue
		}
		if _, dup := seenUtterances[key]; dup {
			continue
		}
		seenIDs[m.ID] = struct{}{}
		seenUtterances[key] = struct{}{}
		view = append(view, m)
	}

	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Timestamp.Before(view[j].Timestamp)
	})
	return view
}
