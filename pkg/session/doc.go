// Package session drives the long-lived conversation the agent sends prompts to.
//
// Invariants:
// - MessageCount < RotationThreshold after any exchange that did not rotate.
// - Rotate resets the conversation context and the message count to zero.
// - SendAndAwait on a closed session returns ErrNotOpen.
// - The stability poller returns as soon as StableChecks identical samples are seen.
//
// Usage:
//
//	s, _ := session.New(cfg, logger)
//	_ = s.Open(ctx)
//	reply, _ := s.SendAndAwait(ctx, "hello")
//	if s.ShouldRotate() {
//		_ = s.Rotate(ctx)
//	}
//	_ = reply
package session
