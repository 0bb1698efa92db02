// Package notification delivers operator alerts for trade and lifecycle
// events. Delivery is best-effort; a failed notification never blocks or
// fails the trading path.
package notification

import "log"

// Level classifies an alert.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelTrade Level = "TRADE"
	LevelError Level = "ERROR"
)

// Alert is one operator notification.
type Alert struct {
	Level Level
	Title string
	Body  string
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Push(Alert) error
}

// Send pushes an alert and logs delivery failures. Safe on a nil notifier.
func Send(n Notifier, level Level, title, body string) {
	if n == nil {
		return
	}
	if err := n.Push(Alert{Level: level, Title: title, Body: body}); err != nil {
		log.Printf("[notify] delivery failed: %v", err)
	}
}

// LogNotifier writes alerts to the process log. It is the default sink when
// no external channel is configured.
type LogNotifier struct{}

func (LogNotifier) Push(a Alert) error {
	log.Printf("[notify] %s %s: %s", a.Level, a.Title, a.Body)
	return nil
}
