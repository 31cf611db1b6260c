package telegram

import (
	"sync"

	"contextbot/internal/chat"
)

// inbox buffers received messages per chat until the bot loop reads them.
// Each chat keeps at most size messages; the oldest are dropped first.
type inbox struct {
	mu      sync.Mutex
	size    int
	chats   map[int64][]chat.Message
	dropped uint64
}

func newInbox(size int) *inbox {
	if size <= 0 {
		size = 1000
	}
	return &inbox{size: size, chats: map[int64][]chat.Message{}}
}

func (b *inbox) push(chatID int64, m chat.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := append(b.chats[chatID], m)
	if over := len(q) - b.size; over > 0 {
		b.dropped += uint64(over)
		q = append(q[:0:0], q[over:]...)
	}
	b.chats[chatID] = q
}

// since returns buffered messages with IDs above after.ID, or everything
// buffered when after is nil. Messages covered by after are released.
func (b *inbox) since(chatID int64, after *chat.Message) []chat.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.chats[chatID]
	var out []chat.Message
	keep := q[:0]
	for _, m := range q {
		if after != nil && m.ID <= after.ID {
			continue
		}
		keep = append(keep, m)
		out = append(out, m)
	}
	clear(q[len(keep):])
	b.chats[chatID] = keep
	return out
}

// takeDropped returns and resets the overflow counter.
func (b *inbox) takeDropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.dropped
	b.dropped = 0
	return n
}
