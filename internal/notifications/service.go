package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"verdandi/internal/config"
)

const userAgent = "Verdandi-Go/0.1.0"

// Event identifies a notification class.
type Event string

const (
	EventReviewRequested   Event = "review_requested"
	EventPipelineCompleted Event = "pipeline_completed"
	EventPipelineNoGo      Event = "pipeline_no_go"
	EventIterateSuggested  Event = "iterate_suggested"
	EventStageError        Event = "stage_error"
	EventDiscoveryFinished Event = "discovery_finished"
	EventTest              Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventReviewRequested:   cfg.Notifications.Review,
			EventPipelineCompleted: cfg.Notifications.Completion,
			EventPipelineNoGo:      cfg.Notifications.Completion,
			EventIterateSuggested:  cfg.Notifications.Completion,
			EventDiscoveryFinished: cfg.Notifications.Completion,
			EventStageError:        cfg.Notifications.Errors,
			EventTest:              true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, p Payload) (message, bool) {
	title := p.text("title")
	label := title
	if id := p.int64("experimentID"); id > 0 {
		label = fmt.Sprintf("#%d %s", id, title)
	}
	switch event {
	case EventReviewRequested:
		return message{
			title:    "Verdandi - Review Needed",
			body:     fmt.Sprintf("👀 %s is waiting for review\nApprove with: verdandi review %d --approve", label, p.int64("experimentID")),
			tags:     []string{"verdandi", "review"},
			priority: "high",
		}, true
	case EventPipelineCompleted:
		body := fmt.Sprintf("✅ Validated: %s", label)
		if url := p.text("url"); url != "" {
			body += "\n" + url
		}
		return message{title: "Verdandi - Validated", body: body, tags: []string{"verdandi", "completed"}, priority: "high"}, true
	case EventPipelineNoGo:
		body := fmt.Sprintf("🛑 No-go: %s", label)
		if stage := p.text("stage"); stage != "" {
			body += fmt.Sprintf(" (at %s)", stage)
		}
		return message{title: "Verdandi - No Go", body: body, tags: []string{"verdandi", "no_go"}}, true
	case EventIterateSuggested:
		return message{title: "Verdandi - Iterate", body: fmt.Sprintf("🔁 Iterate on: %s", label), tags: []string{"verdandi", "iterate"}}, true
	case EventStageError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if stage := p.text("stage"); stage != "" {
			b.WriteString(" in ")
			b.WriteString(stage)
		}
		if label != "" {
			b.WriteString(" for ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if err, ok := p["error"].(error); ok && err != nil {
			b.WriteString(strings.TrimSpace(err.Error()))
		} else if s := p.text("error"); s != "" {
			b.WriteString(s)
		} else {
			b.WriteString("unknown")
		}
		return message{title: "Verdandi - Error", body: b.String(), tags: []string{"verdandi", "error", "alert"}, priority: "high"}, true
	case EventDiscoveryFinished:
		return message{
			title: "Verdandi - Discovery",
			body:  fmt.Sprintf("💡 Discovered %d new ideas (%d skipped as duplicates)", p.int64("created"), p.int64("skipped")),
			tags:  []string{"verdandi", "discovery"},
		}, true
	case EventTest:
		return message{title: "Verdandi - Test", body: "🧪 Notification system test", tags: []string{"verdandi", "test"}, priority: "low"}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func (p Payload) int64(key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Recorder captures published events in memory. Tests use it in place of ntfy.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one captured publication.
type Recorded struct {
	Event   Event
	Payload Payload
}

// Publish implements Service.
func (r *Recorder) Publish(_ context.Context, event Event, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}
