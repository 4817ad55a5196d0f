// Package platform defines the boundary between the command engine and chat
// platforms. Adapters (Feishu today) translate platform events into these
// types and deliver outbound messages.
package platform

import "context"

// InboundMessage is a user message addressed to the bot.
type InboundMessage struct {
	AppID     string
	ChatID    string
	Text      string
	MessageID string
	// EventID deduplicates at-least-once platform deliveries.
	EventID string
}

// CardAction is a button press on an interactive card.
type CardAction struct {
	AppID         string
	ChatID        string
	CorrelationID string
	Approve       bool
	EventID       string
}

// Handler receives inbound platform events. Implemented by the bot.
type Handler interface {
	HandleMessage(ctx context.Context, msg InboundMessage)
	HandleCardAction(ctx context.Context, action CardAction)
}

// Messenger sends outbound messages for one app identity.
type Messenger interface {
	// AppID returns the platform application identity this messenger sends as.
	AppID() string

	// SendText sends a plain text message to a chat.
	SendText(ctx context.Context, chatID, text string) error

	// SendCard sends an interactive card, serialized as JSON.
	SendCard(ctx context.Context, chatID string, card map[string]interface{}) error

	// JoinedChats lists the chats the bot is a member of.
	JoinedChats(ctx context.Context) ([]string, error)
}

// Listener owns the inbound event connection for one app identity.
type Listener interface {
	// Listen blocks, dispatching inbound events to the handler until the
	// context is cancelled.
	Listen(ctx context.Context, handler Handler) error
}
