// Package coordinator schedules the periodic site sync.
//
// The coordinator does not run syncs itself. Every interval, with a small
// random jitter, it enqueues the periodic profile on a sync.Enqueuer; the
// queue worker executes the run and the run's lock keeps replicas from
// crawling concurrently.
//
// # Usage
//
//	queue := sync.NewQueue(syncer, sync.DefaultQueueSize)
//	c := coordinator.New(queue, sync.PeriodicProfile(cfg.GetSync()), cfg.GetSync().GetInterval())
//
//	go queue.Run(ctx)
//	go c.Start(ctx)
//
//	// on shutdown
//	c.Stop()
package coordinator
