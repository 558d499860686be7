package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelUnreachable is a transient transport failure (network, timeout, rate limit).
	ErrChannelUnreachable = errors.New("channel unreachable")
	// ErrAddressInvalid means the target counterparty cannot be resolved.
	ErrAddressInvalid = errors.New("address invalid")
	// ErrTopicMissing means the remote topic thread no longer exists.
	ErrTopicMissing = errors.New("topic missing")
	// ErrUnsupported means no adapter provides the requested capability.
	ErrUnsupported = errors.New("channel capability unsupported")
)

// TransportError tags an adapter failure with one of the sentinel kinds above
// while keeping the underlying cause reachable through errors.Is/As.
type TransportError struct {
	Kind    error
	Channel ChannelType
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Channel, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Channel, e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewTransportError builds a TransportError. A nil kind defaults to ErrChannelUnreachable.
func NewTransportError(kind error, ct ChannelType, op string, err error) error {
	if kind == nil {
		kind = ErrChannelUnreachable
	}
	return &TransportError{Kind: kind, Channel: ct, Op: op, Err: err}
}
