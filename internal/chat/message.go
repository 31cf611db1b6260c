// Package chat holds the message record shared by transports, storage and the oracle.
package chat

import "time"

// Message is a single chat post observed in a channel.
//
// ID is unique within its channel and grows with posting order.
type Message struct {
	ID     int64     `json:"id"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// Latest returns the message with the greatest Time, or false for an empty slice.
// On equal times the later element wins.
func Latest(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	best := msgs[0]
	for _, m := range msgs[1:] {
		if !m.Time.Before(best.Time) {
			best = m
		}
	}
	return best, true
}
