// Package scheduler runs the asynq task queue that decouples webhook
// receipt from turn processing.
package scheduler

import (
	"encoding/json"

	"imovelhub_backend/internal/conversations/domain"

	"github.com/hibiken/asynq"
)

// TaskConversationTurn carries one normalized inbound message through the
// queue to the turn engine.
const TaskConversationTurn = "conversation.turn"

// NewConversationTurnTask builds the queue task for an inbound message.
func NewConversationTurnTask(in domain.InboundMessage) (*asynq.Task, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversationTurn, data), nil
}

// ParseConversationTurnPayload decodes the task back into the inbound
// message.
func ParseConversationTurnPayload(task *asynq.Task) (domain.InboundMessage, error) {
	var in domain.InboundMessage
	if err := json.Unmarshal(task.Payload(), &in); err != nil {
		return domain.InboundMessage{}, err
	}
	return in, nil
}
