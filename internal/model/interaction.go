package model

import (
	"time"
)

// InteractionKind classifies a ledger entry for undo cascading.
type InteractionKind string

const (
	InteractionNormal         InteractionKind = "normal"
	InteractionQuestionPrompt InteractionKind = "question_prompt"
	InteractionQuestionAnswer InteractionKind = "question_answer"
)

// Interaction is one committed exchange: the user's input artifact, the
// runtime-side assistant message identity, and every card artifact the
// renderer produced for it.
type Interaction struct {
	ID                 string          `json:"id"`
	UserArtifactID     string          `json:"user_artifact_id,omitempty"`
	AssistantMessageID string          `json:"assistant_message_id,omitempty"`
	BotArtifactIDs     []string        `json:"bot_artifact_ids"`
	Kind               InteractionKind `json:"kind"`
	Snapshot           string          `json:"snapshot,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// OwnsArtifact reports whether the interaction already holds one of the
// given artifact IDs. Used to attach freshly created artifacts onto an
// in-flight entry instead of committing a duplicate.
func (i *Interaction) OwnsArtifact(ids []string) bool {
	for _, have := range i.BotArtifactIDs {
		for _, id := range ids {
			if have == id {
				return true
			}
		}
	}
	return false
}

// RuntimeMessage is one entry of the runtime's own message list, as
// returned by the control plane. Used to resolve undo rollback targets.
type RuntimeMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
