package order

import (
	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
)

var next = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCanceled},
	StatusPaid:      {StatusShipped, StatusCanceled},
	StatusShipped:   {StatusDelivered, StatusCanceled},
	StatusDelivered: nil,
	StatusCanceled:  nil,
}

// ParseStatus validates s as a known status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := next[st]; !ok {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	return st, nil
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(next[s]) == 0
}

// Transition returns to if the lifecycle allows moving from s to it.
func (s Status) Transition(to Status) (Status, error) {
	for _, allowed := range next[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, errors.Wrapf(ErrInvalidTransition, "%s -> %s", s, to)
}
