package sdk

import (
	"maps"
	"sync"

	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/internal/metrics"
)

// ProgressObserver receives status lines during initialization and execution.
type ProgressObserver interface {
	OnProgress(text string)
}

// WebviewResultObserver receives results produced by a UI surface.
type WebviewResultObserver interface {
	OnWebviewResult(result map[string]any)
}

// ButtonActionObserver receives button presses from a UI surface.
type ButtonActionObserver interface {
	OnButtonAction(name string, result any)
}

// ObserverFuncs is an observer built from optional functions. A nil field
// means the event kind is not observed.
type ObserverFuncs struct {
	Progress      func(text string)
	WebviewResult func(result map[string]any)
	ButtonAction  func(name string, result any)
}

const (
	eventProgress      = "progress"
	eventWebviewResult = "webview_result"
	eventButtonAction  = "button_action"
)

// slots is the capability set of the registered observer.
type slots struct {
	progress      func(string)
	webviewResult func(map[string]any)
	buttonAction  func(string, any)
}

func slotsOf(o any) slots {
	switch v := o.(type) {
	case nil:
		return slots{}
	case ObserverFuncs:
		return slots{v.Progress, v.WebviewResult, v.ButtonAction}
	case *ObserverFuncs:
		if v == nil {
			return slots{}
		}
		return slots{v.Progress, v.WebviewResult, v.ButtonAction}
	}
	var s slots
	if p, ok := o.(ProgressObserver); ok {
		s.progress = p.OnProgress
	}
	if w, ok := o.(WebviewResultObserver); ok {
		s.webviewResult = w.OnWebviewResult
	}
	if b, ok := o.(ButtonActionObserver); ok {
		s.buttonAction = b.OnButtonAction
	}
	return s
}

// notifier delivers events to the current observer on the callback
// dispatcher. Events with no matching slot, or that find the queue full, are
// dropped and never retried.
type notifier struct {
	mu        sync.RWMutex
	slots     slots
	callbacks *dispatcher
	metrics   *metrics.Metrics
	log       logger.Logger
}

func newNotifier(queueSize int, m *metrics.Metrics, log logger.Logger) *notifier {
	return &notifier{
		callbacks: newDispatcher(queueSize),
		metrics:   m,
		log:       log,
	}
}

func (n *notifier) setObserver(o any) {
	s := slotsOf(o)
	n.mu.Lock()
	n.slots = s
	n.mu.Unlock()
}

func (n *notifier) current() slots {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.slots
}

func (n *notifier) Progress(text string) {
	fn := n.current().progress
	if fn == nil {
		n.dropped(eventProgress)
		return
	}
	n.deliver(eventProgress, func() { fn(text) })
}

func (n *notifier) WebviewResult(result map[string]any) {
	fn := n.current().webviewResult
	if fn == nil {
		n.dropped(eventWebviewResult)
		return
	}
	result = maps.Clone(result)
	n.deliver(eventWebviewResult, func() { fn(result) })
}

func (n *notifier) ButtonAction(name string, result any) {
	fn := n.current().buttonAction
	if fn == nil {
		n.dropped(eventButtonAction)
		return
	}
	n.deliver(eventButtonAction, func() { fn(name, result) })
}

func (n *notifier) deliver(kind string, fn func()) {
	ok := n.callbacks.tryDo(func() {
		defer func() {
			if r := recover(); r != nil {
				n.log.Error("observer panicked", "event", kind, "panic", r)
			}
		}()
		fn()
	})
	if !ok {
		n.log.Warn("observer queue full, dropping event", "event", kind)
		n.dropped(kind)
		return
	}
	n.metrics.Event(kind, "delivered")
}

func (n *notifier) dropped(kind string) {
	n.metrics.Event(kind, "dropped")
}

// stop releases the callback goroutine. Events queued before it are still
// delivered.
func (n *notifier) stop() {
	n.callbacks.stop()
}

// flush waits until every event queued so far has been handed to the observer.
func (n *notifier) flush() {
	_, _ = n.callbacks.call(func() (any, error) { return nil, nil })
}
