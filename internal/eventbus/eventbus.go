// Package eventbus implements the three event-delivery modes from
// spec.md §4.1: work-queue (exactly one worker group member gets each
// event), broadcast (every subscribed instance gets every event), and
// instance-local (synchronous, in-process only, never touches NATS).
//
// Grounded on the teacher's NATS subscriber (events/subscriber.go):
// same connect-with-reconnect-handlers shape, generalized from a
// handful of hardcoded subjects to an arbitrary plugin-namespaced
// subject space, and split into queue-group subscribe (work-queue) vs
// plain subscribe (broadcast) instead of the teacher's single
// subscription style.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/logger"
)

// Mode selects one of the three delivery semantics spec.md §4.1 defines.
type Mode string

const (
	ModeWorkQueue     Mode = "work-queue"
	ModeBroadcast     Mode = "broadcast"
	ModeInstanceLocal Mode = "instance-local"
)

// Config holds the broker connection parameters.
type Config struct {
	URL      string
	User     string
	Password string
}

// Handler processes one event's payload. Work-queue and broadcast
// handlers run on NATS delivery goroutines; instance-local handlers
// run synchronously on the emitting goroutine.
type Handler func(ctx context.Context, payload []byte) error

type subscription struct {
	mode     Mode
	pluginID string
	group    string // work-queue only
	sub      *nats.Subscription
}

// EventBus is the process-wide broker client, handed to plugins
// through RequestContext.EventBus; Subject namespaces a plugin's
// subject names under its own id.
type EventBus struct {
	conn       *nats.Conn
	instanceID string
	enabled    bool

	mu            sync.Mutex
	subs          map[string]*subscription // key: subject
	localHandlers map[string][]Handler     // key: subject, instance-local only
}

// New connects to NATS. An empty broker URL does not fail startup -
// work-queue and broadcast subjects are simply unavailable, matching
// the teacher's "subscription disabled, host continues" fallback;
// instance-local delivery needs no broker at all and always works. A
// configured broker that cannot be reached returns BrokerUnavailable.
func New(cfg Config) (*EventBus, error) {
	bus := &EventBus{
		instanceID:    uuid.New().String(),
		subs:          make(map[string]*subscription),
		localHandlers: make(map[string][]Handler),
	}

	if cfg.URL == "" {
		logger.Root().Warn().Msg("event broker URL not configured, work-queue and broadcast delivery disabled")
		return bus, nil
	}

	log := logger.ForComponent("eventbus")
	opts := []nats.Option{
		nats.Name("corehost-platform"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("event broker disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event broker reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("event broker error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, apierr.BrokerUnavailable(err)
	}
	bus.conn = conn
	bus.enabled = true
	log.Info().Str("url", conn.ConnectedUrl()).Msg("connected to event broker")

	return bus, nil
}

// Subject namespaces every event under the declaring plugin's id, so
// two plugins can never collide on a queue group or broadcast name
// (spec.md §4.1: "subjects are namespaced by plugin id").
func Subject(pluginID, name string) string {
	return fmt.Sprintf("%s.%s", pluginID, name)
}

// Subscribe registers handler for subject under the given mode.
// work-queue subscriptions require a non-empty group and reject a
// second registration of the same (subject, group) pair from this
// process - that pairing must be unique per plugin (spec.md §4.1).
// instance-local subscriptions never touch NATS and may be registered
// any number of times; every handler runs on EmitLocal.
func (b *EventBus) Subscribe(ctx context.Context, pluginID, subject string, mode Mode, group string, handler Handler) error {
	switch mode {
	case ModeInstanceLocal:
		b.mu.Lock()
		b.localHandlers[subject] = append(b.localHandlers[subject], handler)
		b.mu.Unlock()
		return nil

	case ModeWorkQueue:
		if group == "" {
			return apierr.InvalidConfig("work-queue subscriptions require a non-empty group name")
		}
		return b.subscribeBroker(pluginID, subject, mode, group, handler)

	case ModeBroadcast:
		return b.subscribeBroker(pluginID, subject, mode, "", handler)

	default:
		return apierr.InvalidConfig(fmt.Sprintf("unknown event delivery mode %q", mode))
	}
}

func (b *EventBus) subscribeBroker(pluginID, subject string, mode Mode, group string, handler Handler) error {
	if !b.enabled {
		return apierr.BrokerUnavailable(fmt.Errorf("event broker not connected"))
	}

	key := subject
	if mode == ModeWorkQueue {
		key = subject + "|" + group
	} else {
		// Broadcast subscriptions are per-instance, so the same
		// instance cannot double-subscribe the same subject twice.
		key = subject + "|broadcast|" + b.instanceID
	}

	b.mu.Lock()
	if _, exists := b.subs[key]; exists {
		b.mu.Unlock()
		return apierr.InvalidConfig(fmt.Sprintf("subject %q already has a %s subscription for this process", subject, mode))
	}
	b.mu.Unlock()

	natsHandler := func(msg *nats.Msg) {
		if err := handler(context.Background(), msg.Data); err != nil {
			logger.ForPlugin(pluginID).Error().Err(err).Str("subject", subject).Msg("event handler failed")
		}
	}

	var sub *nats.Subscription
	var err error
	if mode == ModeWorkQueue {
		sub, err = b.conn.QueueSubscribe(subject, group, natsHandler)
	} else {
		sub, err = b.conn.Subscribe(subject, natsHandler)
	}
	if err != nil {
		return apierr.BrokerUnavailable(err)
	}

	b.mu.Lock()
	b.subs[key] = &subscription{mode: mode, pluginID: pluginID, group: group, sub: sub}
	b.mu.Unlock()

	return nil
}

// Emit publishes payload to subject over the broker, for work-queue
// and broadcast delivery. It does not invoke instance-local handlers -
// use EmitLocal for those.
func (b *EventBus) Emit(ctx context.Context, subject string, payload interface{}) error {
	if !b.enabled {
		return apierr.BrokerUnavailable(fmt.Errorf("event broker not connected"))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return apierr.Internal(err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return apierr.BrokerUnavailable(err)
	}
	return nil
}

// EmitLocal synchronously invokes every instance-local handler
// registered for subject on the calling goroutine, in registration
// order, collecting failures instead of stopping at the first one -
// the allSettled-equivalent semantics spec.md §4.1 requires so one
// failing subscriber cannot block the others.
func (b *EventBus) EmitLocal(ctx context.Context, subject string, payload interface{}) []error {
	data, err := json.Marshal(payload)
	if err != nil {
		return []error{apierr.Internal(err)}
	}

	b.mu.Lock()
	handlers := append([]Handler(nil), b.localHandlers[subject]...)
	b.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// InstanceID uniquely identifies this process among the platform's
// running instances, used to make each instance's broadcast
// subscription distinct (spec.md §4.1).
func (b *EventBus) InstanceID() string { return b.instanceID }

// Shutdown drains and closes every broker subscription and the
// connection itself. Safe to call when the broker was never connected.
func (b *EventBus) Shutdown() {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		_ = s.sub.Unsubscribe()
	}
	_ = b.conn.Drain()
	b.conn.Close()
}
