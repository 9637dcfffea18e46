package repo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Kind tells callers what class of failure an operation hit.
type Kind int

const (
	KindOther Kind = iota
	// KindConnection covers network errors, timeouts and server selection failures.
	KindConnection
	// KindRejected means the server received the command and refused it.
	KindRejected
	// KindCanceled means the caller's context was canceled.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindRejected:
		return "rejected"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// OpError is returned by every failing repository operation.
type OpError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first OpError in err's chain, or KindOther.
func KindOf(err error) Kind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindOther
}

// wrap turns a driver error into an *OpError. ErrNotFound and nil pass through.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &OpError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, topology.ErrServerSelectionTimeout) {
		return KindConnection
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return KindRejected
	}
	return KindOther
}
