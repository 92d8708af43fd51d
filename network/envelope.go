package network

import (
	"context"
	"net/http"
	"sync"
)

// Reply is the single answer to a request: a response or a terminal error.
type Reply struct {
	Response *http.Response
	Err      error
}

// OutgoingRequest is a request a node wants delivered to another peer.
type OutgoingRequest struct {
	Request *http.Request
	Reply   *ReplySlot
}

// IncomingRequest is a request delivered to a node's inbound queue.
type IncomingRequest struct {
	From    PeerAddress
	Request *http.Request
	Reply   *ReplySlot
}

// ReplySlot is a one-shot, capacity-one reply channel. Exactly one of Send or
// Drop takes effect; a slot must never be reused across requests.
type ReplySlot struct {
	ch        chan Reply
	abandoned chan struct{}

	once        sync.Once
	abandonOnce sync.Once
}

// NewReplySlot creates a fresh reply slot for one request.
func NewReplySlot() *ReplySlot {
	return &ReplySlot{
		ch:        make(chan Reply, 1),
		abandoned: make(chan struct{}),
	}
}

// Send places the reply in the slot. It fails with ErrReplyUsed if the slot
// was already answered or dropped, and with ErrNotListening if the waiting
// side is gone.
func (s *ReplySlot) Send(r Reply) error {
	err := ErrReplyUsed
	s.once.Do(func() {
		select {
		case <-s.abandoned:
			close(s.ch)
			err = ErrNotListening
			return
		default:
		}
		s.ch <- r
		close(s.ch)
		err = nil
	})
	return err
}

// Respond is shorthand for Send with a response.
func (s *ReplySlot) Respond(resp *http.Response) error {
	return s.Send(Reply{Response: resp})
}

// Fail is shorthand for Send with an error.
func (s *ReplySlot) Fail(err error) error {
	return s.Send(Reply{Err: err})
}

// Drop closes the slot without an answer. The waiting side observes
// ErrNotAnswering immediately. Dropping an answered slot is a no-op.
func (s *ReplySlot) Drop() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Abandon marks the waiting side as gone; later sends fail with
// ErrNotListening.
func (s *ReplySlot) Abandon() {
	s.abandonOnce.Do(func() {
		close(s.abandoned)
	})
}

// Receive waits for the reply. The returned error is ErrNotAnswering when the
// slot was dropped, or the context error; the reply's own Err is left for the
// caller to inspect.
func (s *ReplySlot) Receive(ctx context.Context) (Reply, error) {
	select {
	case r, ok := <-s.ch:
		if !ok {
			return Reply{}, ErrNotAnswering
		}
		return r, nil
	case <-ctx.Done():
		s.Abandon()
		return Reply{}, ctx.Err()
	}
}

// Wait waits for the reply and flattens it into a response or an error.
func (s *ReplySlot) Wait(ctx context.Context) (*http.Response, error) {
	r, err := s.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Response, nil
}
