package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/displaytime"
)

// Notification is one message addressed to one person.
type Notification struct {
	Event     string    `json:"event"`
	MessageID string    `json:"messageId,omitempty"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifications expands an event into one notification per recipient.
func Notifications(eventType, messageID string, body []byte, now time.Time) ([]Notification, error) {
	switch eventType {
	case EventSlotCancelled:
		var ev SlotCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		out := make([]Notification, 0, len(ev.Signups))
		when := displaytime.FormatRange(ev.Slot.StartTime, ev.Slot.EndTime)
		for _, r := range ev.Signups {
			out = append(out, Notification{
				Event:     eventType,
				MessageID: messageID,
				To:        r.Email,
				Subject:   "Coffee chat cancelled: " + when,
				Body: fmt.Sprintf("Hi %s,\n\nThe coffee chat at %s on %s has been cancelled. "+
					"Feel free to sign up for another open slot.\n", r.FullName, ev.Slot.Location, when),
				CreatedAt: now.UTC(),
			})
		}
		return out, nil
	case EventSignupCreated:
		var ev SignupCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		when := displaytime.FormatRange(ev.Slot.StartTime, ev.Slot.EndTime)
		text := fmt.Sprintf("Hi %s,\n\nYou are signed up for a coffee chat at %s on %s.\n", ev.Signup.FullName, ev.Slot.Location, when)
		if link, err := displaytime.CalendarLink(displaytime.CalendarEvent{
			Title:    "Coffee chat",
			Start:    ev.Slot.StartTime,
			End:      ev.Slot.EndTime,
			Location: ev.Slot.Location,
		}); err == nil {
			text += "\nAdd it to your calendar: " + link + "\n"
		}
		return []Notification{{
			Event:     eventType,
			MessageID: messageID,
			To:        ev.Signup.Email,
			Subject:   "Coffee chat confirmed: " + when,
			Body:      text,
			CreatedAt: now.UTC(),
		}}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", eventType)
}

// FileNotifier appends notifications as JSON lines to a file. It stands in
// for an outbound mail gateway.
type FileNotifier struct {
	path string
	mu   sync.Mutex
}

// NewFileNotifier writes to dir/notifications.log, creating dir if needed.
func NewFileNotifier(dir string) (*FileNotifier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileNotifier{path: filepath.Join(dir, "notifications.log")}, nil
}

// Path is the file being appended to.
func (f *FileNotifier) Path() string { return f.path }

func (f *FileNotifier) Notify(_ context.Context, n Notification) error {
	line, err := json.Marshal(n)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer fh.Close()
	if _, err := fh.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}
