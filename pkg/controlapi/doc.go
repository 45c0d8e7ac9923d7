// Package controlapi exposes the agent controller over HTTP.
//
// Invariants:
// - Lifecycle endpoints answer {"success": bool}; controller errors are never surfaced.
// - Every handler returns without waiting on the worker loop.
// - Stream clients receive a status snapshot every StreamInterval.
//
// Usage:
//
//	srv, _ := controlapi.NewServer(controlapi.Config{
//		Addr:       "127.0.0.1:8765",
//		Controller: ctrl,
//		Logger:     logger,
//	})
//	_ = srv.Start()
//	defer srv.Stop(context.Background())
package controlapi
