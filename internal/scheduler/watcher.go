// Package scheduler polls capability sources in the background. Each pass keeps
// the caches warm and reports values that changed since the previous pass.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/capability"
)

// Collector is satisfied by *capability.Registry.
type Collector interface {
	Collect(ctx context.Context) capability.Snapshot
}

type WatcherConfig struct {
	Interval time.Duration // 0 disables the watcher
	Cooldown time.Duration // minimum gap between two notifications for one key
	// NotifyInitial also announces the values seen on the first pass.
	NotifyInitial bool
}

type state struct {
	value  string
	sentAt time.Time
}

type Watcher struct {
	log      *zap.Logger
	caps     Collector
	notifier interface {
		Send(context.Context, string, string) error
	}
	cfg WatcherConfig
	now func() time.Time

	last    map[string]*state // "namespace/key" -> last seen value
	scanned bool              // a pass has completed
}

func NewWatcher(
	logger *zap.Logger,
	caps Collector,
	notifier interface {
		Send(context.Context, string, string) error
	},
	cfg WatcherConfig,
) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Watcher{
		log:      logger,
		caps:     caps,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		last:     make(map[string]*state),
	}
}

// Run does an immediate pass, then one per tick. Stops when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.cfg.Interval == 0 {
		w.log.Info("watcher_disabled")
		return
	}
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()

	w.scanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher_stopped")
			return
		case <-t.C:
			w.scanOnce(ctx)
		}
	}
}

type change struct {
	key, from, to string
}

func (w *Watcher) scanOnce(ctx context.Context) {
	snap := w.caps.Collect(ctx)
	now := w.now()
	first := !w.scanned
	w.scanned = true

	var changes []change
	for ns, caps := range snap.Capabilities {
		for k, v := range caps {
			key := ns + "/" + k
			prev, seen := w.last[key]
			switch {
			case !seen:
				// A key that shows up after the first pass (its source was
				// failing or not answering before) is a change.
				w.last[key] = &state{value: v}
				if !first || w.cfg.NotifyInitial {
					changes = append(changes, change{key: key, to: v})
				}
			case prev.value != v:
				changes = append(changes, change{key: key, from: prev.value, to: v})
				prev.value = v
			}
		}
	}
	// Failing sources keep their last value; Collect already logged them.

	sort.Slice(changes, func(i, j int) bool { return changes[i].key < changes[j].key })

	var lines []string
	for _, c := range changes {
		w.log.Info("capability_changed",
			zap.String("capability", c.key),
			zap.String("from", c.from),
			zap.String("to", c.to),
		)
		st := w.last[c.key]
		// Cooldown suppresses flapping; the new value is still recorded.
		if !st.sentAt.IsZero() && now.Sub(st.sentAt) < w.cfg.Cooldown {
			continue
		}
		st.sentAt = now
		if c.from == "" {
			lines = append(lines, fmt.Sprintf("%s = %s", c.key, c.to))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s -> %s", c.key, c.from, c.to))
		}
	}
	if len(lines) == 0 {
		return
	}

	// best-effort send
	if err := w.notifier.Send(ctx, "Capability changed", strings.Join(lines, "\n")); err != nil {
		w.log.Warn("watcher_notify_error", zap.Error(err))
	}
}
