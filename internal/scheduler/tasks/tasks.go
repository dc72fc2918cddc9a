// Package tasks wires the pipeline's recurring work into the scheduler.
package tasks

import (
	"context"

	"github.com/sportarr/sportarr/internal/autosearch"
	"github.com/sportarr/sportarr/internal/config"
	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/scheduler"
)

// RegisterMonitoredSearch schedules the periodic sweep over monitored
// missing events.
func RegisterMonitoredSearch(sched *scheduler.Scheduler, searcher *autosearch.Service, cfg config.AutoSearchConfig) error {
	return sched.Register(scheduler.TaskConfig{
		ID:   "monitored-search",
		Name: "Monitored Search",
		Cron: cfg.Cron,
		Func: func(ctx context.Context) error {
			_, err := searcher.SearchAllMonitored(ctx)
			return err
		},
	})
}

// RegisterCompletionPoll schedules download status polling and import of
// finished downloads.
func RegisterCompletionPoll(sched *scheduler.Scheduler, poller *downloader.CompletionPoller, cfg config.AutoSearchConfig) error {
	return sched.Register(scheduler.TaskConfig{
		ID:         "completion-poll",
		Name:       "Download Completion Poll",
		Cron:       cfg.CompletionCron,
		RunOnStart: true, // catch downloads that finished while offline
		Func:       poller.Poll,
	})
}

// RegisterCacheSweep schedules eviction of stale format match cache entries.
func RegisterCacheSweep(sched *scheduler.Scheduler, cache *customformat.Cache, cfg config.CacheConfig) error {
	return sched.Register(scheduler.TaskConfig{
		ID:   "format-cache-sweep",
		Name: "Format Cache Sweep",
		Cron: cfg.SweepCron,
		Func: func(context.Context) error {
			cache.Sweep()
			return nil
		},
	})
}
