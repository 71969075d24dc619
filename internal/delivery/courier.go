// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package delivery

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
	"github.com/lukasdietrich/briefrelay/internal/metrics"
	"github.com/lukasdietrich/briefrelay/internal/storage"
)

// Parcel is an assembled message: synthesized header fields followed by the
// unmodified raw message.
type Parcel struct {
	Header []byte
	Entry  storage.CacheEntry
}

// Reader implements mails.Body.
func (p *Parcel) Reader() (io.Reader, error) {
	r, err := p.Entry.Reader()
	if err != nil {
		return nil, err
	}

	return io.MultiReader(bytes.NewReader(p.Header), r), nil
}

// Courier delivers parcels to forward targets. Every target gets its own
// independent attempt, which is never retried.
type Courier struct {
	exchanger Exchanger
	transport Transport
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCourier creates a Courier. Deliveries run on a context owned by the
// Courier, so that they outlive the smtp session they originate from.
func NewCourier(exchanger Exchanger, transport Transport) *Courier {
	ctx, cancel := context.WithCancel(context.Background())

	return &Courier{
		exchanger: exchanger,
		transport: transport,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Batch is the set of attempts started by a single Dispatch.
type Batch struct {
	attempts []*Attempt
	done     chan struct{}
}

// Wait blocks until every attempt of the batch finished and returns them in
// the order of the targets.
func (b *Batch) Wait() []Attempt {
	<-b.done

	attempts := make([]Attempt, len(b.attempts))
	for i, attempt := range b.attempts {
		attempts[i] = *attempt
	}

	return attempts
}

// Dispatch starts one attempt per target and returns immediately. The log
// fields of ctx are kept, its cancellation is not. The parcel entry is
// released once all attempts finished.
func (c *Courier) Dispatch(ctx context.Context, sender mails.Address, targets []mails.ForwardTarget, parcel *Parcel) *Batch {
	ctx = log.Detach(c.ctx, ctx)
	c.wg.Add(1)

	batch := Batch{
		attempts: make([]*Attempt, len(targets)),
		done:     make(chan struct{}),
	}

	results := make(chan *Attempt, len(targets))

	for i, target := range targets {
		attempt := newAttempt(target)
		batch.attempts[i] = attempt

		go func() {
			c.Deliver(ctx, attempt, sender, parcel)
			results <- attempt
		}()
	}

	go c.collect(ctx, len(targets), results, parcel, batch.done)

	return &batch
}

// collect waits for n attempts to finish and releases the parcel afterwards.
func (c *Courier) collect(ctx context.Context, n int, results <-chan *Attempt, parcel *Parcel, done chan<- struct{}) {
	defer c.wg.Done()
	defer close(done)

	if n == 0 {
		log.DebugContext(ctx).Msg("no forward targets, nothing to deliver")
	}

	var delivered int

	for i := 0; i < n; i++ {
		attempt := <-results

		metrics.Deliveries.WithLabelValues(attempt.State.String()).Inc()
		metrics.DeliveryDuration.Observe(attempt.Duration().Seconds())

		if attempt.State == StateDelivered {
			delivered++
		}
	}

	log.InfoContext(ctx).
		Int("targets", n).
		Int("delivered", delivered).
		Int("failed", n-delivered).
		Msg("all delivery attempts finished")

	if err := parcel.Entry.Release(ctx); err != nil {
		log.WarnContext(ctx).
			Err(err).
			Msg("could not release message")
	}
}

// Deliver runs a single attempt to completion. Failures are recorded in the
// attempt and logged, never returned.
func (c *Courier) Deliver(ctx context.Context, attempt *Attempt, sender mails.Address, parcel mails.Body) {
	ctx = log.WithAttempt(ctx, attempt.ID)
	attempt.Started = c.now()

	defer func() {
		attempt.Finished = c.now()
		c.logAttempt(ctx, attempt)
	}()

	from, err := sender.ASCII()
	if err != nil {
		attempt.fail(err)
		return
	}

	to, err := attempt.Target.Target.ASCII()
	if err != nil {
		attempt.fail(err)
		return
	}

	message, err := parcel.Reader()
	if err != nil {
		attempt.fail(err)
		return
	}

	attempt.transition(StateConnecting)

	conn, host, err := c.exchanger.Exchange(ctx, to.Domain())
	if err != nil {
		attempt.fail(err)
		return
	}

	attempt.Host = host
	attempt.transition(StateSending)

	p := mails.NewPrepender(3)
	p.Prepend("X-Forwarded-To", attempt.Target.Target.String())
	p.PrependFolded("X-Forwarded-For", attempt.Target.Original.String()+" "+attempt.Target.Target.String())
	p.Prepend("Delivered-To", attempt.Target.Original.String())

	if err := c.transport.Send(ctx, conn, host, from, to, p.Reader(message)); err != nil {
		attempt.fail(err)
		return
	}

	attempt.transition(StateDelivered)
}

func (c *Courier) logAttempt(ctx context.Context, attempt *Attempt) {
	if attempt.State == StateDelivered {
		log.InfoContext(ctx).
			Stringer("original", attempt.Target.Original).
			Stringer("target", attempt.Target.Target).
			Str("host", attempt.Host).
			Dur("duration", attempt.Duration()).
			Msg("delivered")

		return
	}

	event := log.WarnContext(ctx).
		Stringer("original", attempt.Target.Original).
		Stringer("target", attempt.Target.Target).
		Str("host", attempt.Host).
		Err(attempt.Err)

	if code := replyCode(attempt.Err); code > 0 {
		event = event.
			Int("code", code).
			Bool("permanent", isPermanentErr(attempt.Err))
	}

	event.Msg("delivery failed")
}

// Wait blocks until all dispatched batches finished.
func (c *Courier) Wait() {
	c.wg.Wait()
}

// Close cancels all running attempts and waits for them to finish.
func (c *Courier) Close() {
	c.cancel()
	c.Wait()
}
