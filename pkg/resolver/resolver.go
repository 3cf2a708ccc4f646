// Package resolver is the request/reply collaborator for destinations
// outside the local AS, spec.md §4.6: the core emits an
// ExternalDestinationRequest and awaits a Reply carrying either a dpid or
// switch name plus an outport. Implemented as an in-process channel pair
// rather than the original's cooperative-suspend primitive, since Go's
// goroutine+channel model is the idiomatic equivalent of "suspend the
// calling task and yield to other events."
package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/meridian-sdn/meridian/pkg/merrors"
)

// DefaultTimeout bounds how long Request waits for a reply before giving
// up. spec.md leaves the resolver's own response time unbounded and
// requires implementations to make a timeout configurable; this is that
// configurable default.
const DefaultTimeout = 5 * time.Second

// Request is the outbound ExternalDestinationRequest.
type Request struct {
	DestinationIP net.IP
	Family        int
}

// Reply answers a Request. Exactly one of DPID or SwitchName must be set;
// if neither is, the destination is undeliverable.
type Reply struct {
	DPID       uint64
	HasDPID    bool
	SwitchName string
	OutportNo  uint16
}

// Resolved reports whether the reply identifies a usable egress point.
func (r Reply) Resolved() bool {
	return r.HasDPID || r.SwitchName != ""
}

// Handler answers one Request, returning the egress point or an error.
// Registered by the external resolver ("module B") collaborator.
type Handler func(ctx context.Context, req Request) (Reply, error)

// Resolver issues ExternalDestinationRequests to a registered Handler,
// bounding the wait with a per-call timeout.
type Resolver struct {
	handler Handler
	timeout time.Duration
}

// New constructs a Resolver that dispatches to handler, waiting at most
// timeout for a reply. A zero timeout uses DefaultTimeout.
func New(handler Handler, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{handler: handler, timeout: timeout}
}

// Request asks the external resolver to place dst, suspending the caller
// (via context cancellation / select) until a reply arrives or the
// configured timeout elapses.
func (r *Resolver) Request(ctx context.Context, dst net.IP, family int) (Reply, error) {
	if r.handler == nil {
		return Reply{}, fmt.Errorf("resolver: no handler registered")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := r.handler(ctx, Request{DestinationIP: dst, Family: family})
		done <- result{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return Reply{}, res.err
		}
		return res.reply, nil
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("resolver: request for %s timed out: %w", dst, &merrors.UnresolvableDestinationError{Destination: dst.String()})
	}
}
