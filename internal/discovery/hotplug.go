package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"devmirror/internal/logging"
)

// HotplugWatcher listens for USB add/remove uevents and calls trigger for each.
// It only shortens the time to notice a change; the poller interval remains the
// fallback when netlink is unavailable.
type HotplugWatcher struct {
	logger  *slog.Logger
	trigger func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHotplugWatcher creates a watcher that calls trigger on USB device events.
func NewHotplugWatcher(logger *slog.Logger, trigger func()) *HotplugWatcher {
	return &HotplugWatcher{
		logger:  logging.NewComponentLogger(logger, "hotplug"),
		trigger: trigger,
	}
}

// Start connects to the kernel uevent socket. Connection failures are logged
// and otherwise ignored.
func (w *HotplugWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; device changes will be noticed on the next poll",
			"netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the process may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "attach and detach detection waits for the poll interval"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.monitorLoop(ctx, conn, w.quit, w.done)

	w.logger.Info("hotplug watcher started",
		logging.String(logging.FieldEventType, "hotplug_started"),
	)
	return nil
}

// Stop shuts down the watcher and waits for its loop to exit.
func (w *HotplugWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	done := w.done
	w.quit = nil
	w.running = false
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()

	w.logger.Info("hotplug watcher stopped",
		logging.String(logging.FieldEventType, "hotplug_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *HotplugWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *HotplugWatcher) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug detection may miss events"),
			)
		}
	}
}

// buildMatcher matches whole USB devices being plugged or unplugged:
// SUBSYSTEM=usb, DEVTYPE=usb_device, ACTION=add|remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"DEVTYPE":   "^usb_device$",
		},
	})
	return rules
}

func (w *HotplugWatcher) handleEvent(uevent netlink.UEvent) {
	w.logger.Debug("usb device event",
		logging.String("action", string(uevent.Action)),
		logging.String("devpath", uevent.Env["DEVPATH"]),
		logging.String("product", uevent.Env["PRODUCT"]),
	)
	if w.trigger != nil {
		w.trigger()
	}
}
