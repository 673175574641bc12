package executor

import (
	"context"
	"time"
)

// ConversationRecorder captures prompt/response pairs for debugging/cost tracking.
type ConversationRecorder interface {
	RecordConversation(ctx context.Context, rec ConversationRecord) error
}

// ConversationRecord describes a single assembler → LLM interaction.
type ConversationRecord struct {
	ModelID   string
	Prompt    string
	Response  string
	Timestamp time.Time
}

type noopConversationRecorder struct{}

func (noopConversationRecorder) RecordConversation(ctx context.Context, rec ConversationRecord) error {
	return nil
}
