// Package ordercode issues the integer correlation codes handed to the payment
// gateway. Customer orders and premium purchases draw from one shared counter
// and are kept apart by the last decimal digit.
package ordercode

import (
	"context"
	"fmt"
)

// Kind is the numbering namespace a code belongs to.
type Kind int64

const (
	KindUnknown  Kind = 0
	KindCustomer Kind = 1
	KindPremium  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindCustomer:
		return "customer"
	case KindPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// MaxCode is the largest value the gateway accepts (2^53 - 1).
const MaxCode int64 = 1<<53 - 1

// Code is a generated gateway order code.
type Code int64

// Kind returns the namespace encoded in the code.
func (c Code) Kind() Kind { return KindOf(int64(c)) }

func (c Code) Int64() int64 { return int64(c) }

// KindOf decodes the namespace of a raw code received from the gateway.
func KindOf(code int64) Kind {
	if code <= 0 {
		return KindUnknown
	}
	switch Kind(code % 10) {
	case KindCustomer:
		return KindCustomer
	case KindPremium:
		return KindPremium
	default:
		return KindUnknown
	}
}

// Sequence is a counter shared by every instance issuing codes. Each call
// returns a value no other call, in any process, has returned.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// Generator lays codes out as counter*10 + kind.
type Generator struct {
	seq Sequence
}

func NewGenerator(seq Sequence) *Generator {
	return &Generator{seq: seq}
}

// Next returns a fresh code in the kind's namespace.
func (g *Generator) Next(ctx context.Context, kind Kind) (Code, error) {
	if kind != KindCustomer && kind != KindPremium {
		return 0, fmt.Errorf("ordercode: unsupported kind %d", kind)
	}
	counter, err := g.seq.Next(ctx)
	if err != nil {
		return 0, fmt.Errorf("ordercode: next counter: %w", err)
	}
	if counter <= 0 || counter > (MaxCode-int64(kind))/10 {
		return 0, fmt.Errorf("ordercode: counter %d out of gateway range", counter)
	}
	return Code(counter*10 + int64(kind)), nil
}
