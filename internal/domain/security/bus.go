package security

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"authguard-go/internal/platform/logging"
)

// AlertTopic is the bus topic every emitted alert is published on.
const AlertTopic = "security:alert"

const alertQueueSize = 256

// alertBus fans alerts out to subscribers. Synchronous subscribers run
// inline on the emitting goroutine; asynchronous subscribers are fed
// through a bounded worker pool so a slow consumer never stalls event
// tracking. The queue drops on overflow rather than blocking.
type alertBus struct {
	sync     evbus.Bus
	async    evbus.Bus
	logger   *logging.Logger
	workChan chan Alert
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newAlertBus(workers int, logger *logging.Logger) *alertBus {
	if workers <= 0 {
		workers = defaultAsyncWorkers
	}

	b := &alertBus{
		sync:     evbus.New(),
		async:    evbus.New(),
		logger:   logger,
		workChan: make(chan Alert, alertQueueSize),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *alertBus) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopChan:
			return
		case alert := <-b.workChan:
			b.deliver(alert)
		}
	}
}

// deliver publishes to the async subscribers, shielding the worker from
// a panicking consumer.
func (b *alertBus) deliver(alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorTag(logging.TagSecurity, "alert subscriber panicked: %v", r)
		}
	}()
	b.async.Publish(AlertTopic, alert)
}

func (b *alertBus) publish(alert Alert) {
	b.sync.Publish(AlertTopic, alert)

	select {
	case b.workChan <- alert:
	default:
		b.logger.WarnTag(logging.TagSecurity, "alert queue full, dropping async delivery of %s", alert.Type)
	}
}

func (b *alertBus) subscribe(fn func(Alert)) error {
	return b.sync.Subscribe(AlertTopic, fn)
}

func (b *alertBus) subscribeAsync(fn func(Alert)) error {
	return b.async.Subscribe(AlertTopic, fn)
}

func (b *alertBus) unsubscribe(fn func(Alert)) error {
	if err := b.sync.Unsubscribe(AlertTopic, fn); err == nil {
		return nil
	}
	return b.async.Unsubscribe(AlertTopic, fn)
}

func (b *alertBus) close() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	b.wg.Wait()
}
