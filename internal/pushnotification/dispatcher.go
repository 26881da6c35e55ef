package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/agentforge/internal/hub"
)

const dispatcherBuffer = 256

// EventSource is the in-process side of the notification hub.
type EventSource interface {
	Subscribe(bufSize int) (string, <-chan hub.Event)
	Unsubscribe(id string)
	ClientCount(userID string) int
}

// Dispatcher turns terminal execution events into Web Push notifications
// for users without a live connection.
type Dispatcher struct {
	events EventSource
	sender *Sender
}

func NewDispatcher(events EventSource, sender *Sender) *Dispatcher {
	return &Dispatcher{events: events, sender: sender}
}

// Start consumes hub events until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.events.Subscribe(dispatcherBuffer)
	defer d.events.Unsubscribe(subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev hub.Event) {
	payload := payloadFor(ev)
	if payload == nil || ev.UserID == "" {
		return
	}
	if d.events.ClientCount(ev.UserID) > 0 {
		return
	}
	d.sender.SendToUser(ctx, ev.UserID, payload)
}

func payloadFor(ev hub.Event) *NotificationPayload {
	url := fmt.Sprintf("/tasks/%d", ev.TaskID)
	switch ev.Type {
	case hub.EventCompleted:
		body := fmt.Sprintf("Task #%d finished", ev.TaskID)
		if result, ok := ev.Data["result"].(map[string]any); ok {
			if branch, _ := result["branch"].(string); branch != "" {
				body += " on " + branch
			}
		}
		return &NotificationPayload{Title: "Execution completed", Body: body, URL: url, Tag: ev.ExecutionID}
	case hub.EventError:
		msg, _ := ev.Data["error"].(string)
		return &NotificationPayload{
			Title: "Execution failed",
			Body:  fmt.Sprintf("Task #%d: %s", ev.TaskID, msg),
			URL:   url,
			Tag:   ev.ExecutionID,
		}
	}
	return nil
}
