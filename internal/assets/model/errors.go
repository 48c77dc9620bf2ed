// Package model defines the asset, vector-context, and scan records shared by
// the scorers, the stores, and the HTTP layer.
package model

// ErrValidation is returned by service methods when the caller supplies invalid
// input. Handlers should convert this to HTTP 400 rather than 500.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// ErrUnauthorized is returned when the request carries no owner identity.
// Handlers convert it to HTTP 401.
type ErrUnauthorized struct{ Msg string }

func (e *ErrUnauthorized) Error() string { return e.Msg }
