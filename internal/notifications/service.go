package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devmirror/internal/config"
)

const userAgent = "devmirror/0.1.0"

// Service defines the notification surface exposed to the supervisor.
type Service interface {
	NotifyDeviceAttached(ctx context.Context, device string) error
	NotifyDeviceDetached(ctx context.Context, device string) error
	NotifyMirrorFailed(ctx context.Context, device string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
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
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		deviceEvents: cfg.Notifications.DeviceEvents,
		failures:     cfg.Notifications.Failures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	deviceEvents bool
	failures     bool
}

func (n *ntfyService) NotifyDeviceAttached(ctx context.Context, device string) error {
	if !n.deviceEvents {
		return nil
	}
	data := payload{
		title:   "devmirror - Device Attached",
		message: fmt.Sprintf("📱 Device attached: %s", strings.TrimSpace(device)),
		tags:    []string{"devmirror", "device", "attached"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeviceDetached(ctx context.Context, device string) error {
	if !n.deviceEvents {
		return nil
	}
	data := payload{
		title:   "devmirror - Device Detached",
		message: fmt.Sprintf("🔌 Device detached: %s", strings.TrimSpace(device)),
		tags:    []string{"devmirror", "device", "detached"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMirrorFailed(ctx context.Context, device string, err error) error {
	if !n.failures {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Mirror failed for ")
	builder.WriteString(strings.TrimSpace(device))
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "devmirror - Mirror Failed",
		message:  builder.String(),
		tags:     []string{"devmirror", "mirror", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "devmirror - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"devmirror", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) NotifyDeviceAttached(context.Context, string) error      { return nil }
func (noopService) NotifyDeviceDetached(context.Context, string) error      { return nil }
func (noopService) NotifyMirrorFailed(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
