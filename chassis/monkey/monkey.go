// Package monkey - fault injection for staging environments
package monkey

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/freundallein/packer/chassis/queue"
)

// ErrMonkey - injected failure
var ErrMonkey = errors.New("monkey error")

// Injector with some probability turns a success into ErrMonkey.
// A nil Injector never injects.
type Injector struct {
	chance float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns nil when chance is not positive.
func New(chance float64) *Injector {
	if chance <= 0 {
		return nil
	}
	return &Injector{chance: chance, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// RandomizeError keeps a real error and may replace nil with ErrMonkey.
func (in *Injector) RandomizeError(err error) error {
	if err != nil || in == nil {
		return err
	}
	in.mu.Lock()
	roll := in.rnd.Float64()
	in.mu.Unlock()
	if roll >= in.chance {
		return nil
	}
	return ErrMonkey
}

// Queue - queue.Client that randomly fails sends and acknowledgements
type Queue struct {
	queue.Client
	monkey *Injector
}

// WrapQueue returns cli itself when the injector is disabled.
func WrapQueue(cli queue.Client, in *Injector) queue.Client {
	if in == nil {
		return cli
	}
	return &Queue{Client: cli, monkey: in}
}

// SendMessage ...
func (q *Queue) SendMessage(ctx context.Context, message string) error {
	if err := q.monkey.RandomizeError(nil); err != nil {
		return err
	}
	return q.Client.SendMessage(ctx, message)
}

// Acknowledge ...
func (q *Queue) Acknowledge(ctx context.Context, message *queue.RecvMessage) error {
	if err := q.monkey.RandomizeError(nil); err != nil {
		return err
	}
	return q.Client.Acknowledge(ctx, message)
}
