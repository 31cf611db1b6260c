// Package transport defines how the bot reads channel messages and posts replies.
package transport

import (
	"context"

	"contextbot/internal/chat"
)

// Source fetches new messages for a channel.
type Source interface {
	// Messages returns messages newer than after, oldest first. A nil after means
	// everything the source still holds for the channel.
	Messages(ctx context.Context, channel string, after *chat.Message) ([]chat.Message, error)
}

// Sink posts text to a channel.
type Sink interface {
	Send(ctx context.Context, channel, text string) error
}

// Adapter is a chat backend with a background receive loop.
type Adapter interface {
	Source
	Sink
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
