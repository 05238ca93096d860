package commands

import (
	"fmt"
	"time"

	"github.com/busybox42/mailroom/internal/blacklist"
	"github.com/busybox42/mailroom/internal/cache"
	"github.com/busybox42/mailroom/internal/config"
	"github.com/busybox42/mailroom/internal/delivery"
	"github.com/busybox42/mailroom/internal/dispatch"
	"github.com/busybox42/mailroom/internal/pause"
	"github.com/busybox42/mailroom/internal/queue"
	"github.com/busybox42/mailroom/internal/storage"
	"github.com/busybox42/mailroom/internal/transport"
)

// app bundles the wired components a command needs. Commands that only touch
// the store (cleanup, status) skip the delivery side with storeOnly.
type app struct {
	cfg     *config.Config
	store   *queue.Store
	content storage.Backend
	engine  *delivery.Engine
	trigger dispatch.Trigger
	cache   cache.Cache
}

// newApp wires the store and content backend, and unless storeOnly is set,
// the blacklist, pause flag, transport and delivery engine. The dispatch
// trigger is left unset; workers attach their own.
func newApp(cfg *config.Config, storeOnly bool) (*app, error) {
	store := queue.NewStore(cfg.Database.Driver, cfg.Database.DSN)
	if err := store.Connect(); err != nil {
		return nil, err
	}

	content, err := storage.New(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: store, content: content}
	if storeOnly {
		return a, nil
	}

	blCache, err := cache.New(cfg.Blacklist.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := blCache.Connect(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect blacklist cache: %w", err)
	}
	a.cache = blCache
	checker := blacklist.NewChecker(store, blCache,
		time.Duration(cfg.Blacklist.TTLSeconds)*time.Second)

	pauseFlag, err := pause.New(cfg.Pause)
	if err != nil {
		a.Close()
		return nil, err
	}

	tr := transport.NewBreaker(transport.NewSMTP(cfg.Transport), cfg.Transport)
	a.engine = delivery.NewEngine(store, content, checker, pauseFlag, tr,
		cfg.Transport.SendTimeout())
	return a, nil
}

// attachTrigger creates the configured dispatch trigger and wires it to the
// engine. The local trigger starts delivering immediately; the kafka trigger
// only publishes, with consumption handled by the worker command.
func (a *app) attachTrigger() error {
	trigger, err := dispatch.New(a.cfg.Dispatch, a.engine)
	if err != nil {
		return err
	}
	a.trigger = trigger
	a.engine.SetTrigger(trigger)
	return nil
}

// Close releases everything in reverse dependency order.
func (a *app) Close() {
	if a.trigger != nil {
		_ = a.trigger.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
