// Package merrors defines the controller's error taxonomy.
//
// Every error raised by the core falls into one of the kinds below. None are
// fatal except a TAP device misconfigured at startup, which the caller in
// cmd/meridiand chooses to treat as a hard exit.
package merrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is against these to classify a wrapped error.
var (
	// ErrConfigParse marks a startup config file that failed to parse.
	// The owning component logs it and continues with an empty config.
	ErrConfigParse = errors.New("config parse error")

	// ErrUnknownSwitch marks a message referencing a dpid the topology
	// store has no record of. Tolerated: log and ignore.
	ErrUnknownSwitch = errors.New("unknown switch")

	// ErrTapWrite marks a failed write to the TAP device. Propagated to
	// the caller.
	ErrTapWrite = errors.New("tap write error")

	// ErrNoRoute marks a packet-in for which no path could be computed.
	// The packet is dropped.
	ErrNoRoute = errors.New("no route")

	// ErrUnresolvableDestination marks a resolver reply with neither dpid
	// nor switch name set, or a resolver that never answered within its
	// configured timeout. The packet is dropped.
	ErrUnresolvableDestination = errors.New("unresolvable destination")

	// ErrMalformedPacket marks a packet-in that failed to parse. Logged
	// at debug level and ignored.
	ErrMalformedPacket = errors.New("malformed packet")
)

// ConfigParseError carries the file and underlying cause of a startup
// config parse failure.
type ConfigParseError struct {
	File  string
	Cause error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.File, e.Cause)
}

func (e *ConfigParseError) Unwrap() error {
	return ErrConfigParse
}

// NewConfigParseError wraps a parse failure for the named file.
func NewConfigParseError(file string, cause error) *ConfigParseError {
	return &ConfigParseError{File: file, Cause: cause}
}

// UnknownSwitchError carries the dpid a message referenced.
type UnknownSwitchError struct {
	DPID uint64
}

func (e *UnknownSwitchError) Error() string {
	return fmt.Sprintf("unknown switch: dpid=%d", e.DPID)
}

func (e *UnknownSwitchError) Unwrap() error {
	return ErrUnknownSwitch
}

// TapWriteError carries the byte count attempted and the underlying I/O
// cause.
type TapWriteError struct {
	Attempted int
	Cause     error
}

func (e *TapWriteError) Error() string {
	return fmt.Sprintf("tap write of %d bytes failed: %v", e.Attempted, e.Cause)
}

func (e *TapWriteError) Unwrap() error {
	return ErrTapWrite
}

// NoRouteError carries the source and destination dpids a path was sought
// between.
type NoRouteError struct {
	Src, Dst uint64
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no route from dpid=%d to dpid=%d", e.Src, e.Dst)
}

func (e *NoRouteError) Unwrap() error {
	return ErrNoRoute
}

// UnresolvableDestinationError carries the destination IP the external
// resolver could not place.
type UnresolvableDestinationError struct {
	Destination string
}

func (e *UnresolvableDestinationError) Error() string {
	return fmt.Sprintf("unresolvable destination: %s", e.Destination)
}

func (e *UnresolvableDestinationError) Unwrap() error {
	return ErrUnresolvableDestination
}

// MalformedPacketError carries the reason decoding failed.
type MalformedPacketError struct {
	Reason string
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet: %s", e.Reason)
}

func (e *MalformedPacketError) Unwrap() error {
	return ErrMalformedPacket
}
