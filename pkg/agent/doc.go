// Package agent runs queued tasks one at a time against a long-lived session.
//
// Invariants:
// - At most one worker goroutine exists per Start; each Start gets its own run.
// - The scheduler ticks and tasks execute on the worker goroutine only.
// - No tick and no dequeue happen while paused; an in-flight exchange finishes.
// - Status never waits on the worker.
//
// Usage:
//
//	ctrl, _ := agent.New(agent.Config{
//		Queue:          queue,
//		Scheduler:      scheduler,
//		SessionFactory: session.NewFactory(cfg.Session, logger),
//		Sink:           sink,
//		Logger:         logger,
//	})
//	_ = ctrl.Start(ctx)
//	defer ctrl.Wait()
//	defer ctrl.Stop()
package agent
