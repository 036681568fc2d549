// Package events carries change notifications from the chat services to
// connected clients. Clients treat an event as "refetch", never as state.
package events

import "context"

// Event types
const (
	TypeConversationCreated = "conversation.created"
	TypeMessageCreated      = "message.created"
	TypeMessageDeleted      = "message.deleted"
	TypeMessageReaction     = "message.reaction"
	TypeTyping              = "typing"
	TypeRead                = "read"
)

// Event is a change notification addressed to a set of users
type Event struct {
	Type           string      `json:"type"`
	ConversationID uint64      `json:"conversation_id,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
}

// Publisher delivers an event to the given recipients
type Publisher interface {
	Publish(ctx context.Context, recipients []uint64, evt *Event) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, []uint64, *Event) error { return nil }

// Multi fans an event out to several publishers; the first error is returned
// after every publisher has been tried.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, recipients []uint64, evt *Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, recipients, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
