// Package service implements the business logic layer for the Hiretrack API.
//
// Services own validation, authorization rules and the application stage
// machine. Handlers call services; services call repositories through
// interfaces they declare themselves.
//
// # Service Pattern
//
//   - Constructor function (NewXxxService) accepts a config struct with repository dependencies
//   - Methods take a context and the acting user's id where ownership matters
//   - Errors are sentinel values that each belong to a kind (ErrNotFound, ErrInvalidState, ...)
//
// # Error Handling
//
// Callers branch on the kind, not the sentinel:
//
//	_, err := lifecycle.TransitionStage(ctx, appID, model.StageOffer, actorID)
//	switch service.ErrorKind(err) {
//	case service.ErrInvalidState:
//	    // illegal move under the active policy
//	case service.ErrConflict:
//	    // another writer won every retry
//	}
//
// A sentinel matches its kind under errors.Is, and wrapping with errors.Wrap
// keeps both the sentinel and its kind visible.
//
// # Lifecycle
//
// LifecycleManager is the only writer of application stages. Each change and
// its history row commit together, and a StageEvent is handed to the
// Dispatcher only after the commit.
package service
