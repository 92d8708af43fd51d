package simnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/arrow"
	"github.com/VanDung-dev/HieraChain-Simnet/logging"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

// Fabric forwards one node's outgoing requests to their destinations and
// relays each reply back to the caller. Metrics and Trace are optional.
type Fabric struct {
	Addr     network.PeerAddress
	Outgoing *network.Queue[network.OutgoingRequest]
	Switch   *Switch
	Registry *Registry
	Metrics  *api.Metrics
	Trace    *arrow.Recorder
	Logger   zerolog.Logger
}

// NewFabric creates the fabric for the node behind h.
func NewFabric(h *Handle, sw *Switch, reg *Registry) *Fabric {
	return &Fabric{
		Addr:     h.Addr,
		Outgoing: h.Outgoing,
		Switch:   sw,
		Registry: reg,
		Logger:   logging.WithComponent("fabric"),
	}
}

// Run forwards requests until the outbound queue is closed, which ends the
// fabric with a nil error. A destination that is unknown or no longer
// listening, or a caller that stopped waiting, ends it with an error wrapping
// network.ErrNotListening. A destination that drops a request only fails that
// request.
func (f *Fabric) Run(ctx context.Context) error {
	log := f.Logger.With().Stringer("node", f.Addr).Logger()

	for {
		out, err := f.Outgoing.Recv(ctx)
		if err != nil {
			if errors.Is(err, network.ErrQueueClosed) {
				log.Debug().Msg("Outbound queue closed")
				return nil
			}
			return err
		}

		if err := f.forward(ctx, log, out); err != nil {
			log.Error().Err(err).Msg("Fabric stopped")
			return err
		}
	}
}

func (f *Fabric) forward(ctx context.Context, log zerolog.Logger, out network.OutgoingRequest) error {
	start := time.Now()
	ev := arrow.TraceEvent{At: start, From: f.Addr.String()}

	if out.Request == nil || out.Request.URL == nil {
		err := fmt.Errorf("%w: request without target", network.ErrTransport)
		_ = out.Reply.Fail(err)
		f.record(ev, api.OutcomeFailed, start, err)
		return nil
	}
	ev.Method = out.Request.Method
	ev.Path = out.Request.URL.Path

	if !f.Switch.Enabled() {
		out.Reply.Drop()
		f.record(ev, api.OutcomeDropped, start, network.ErrNotAnswering)
		log.Debug().Str("target", out.Request.URL.Host).Str("path", ev.Path).Msg("Request dropped by partition")
		return nil
	}

	dest, err := network.AddressFromTarget(out.Request.URL)
	if err != nil {
		out.Reply.Drop()
		err = fmt.Errorf("%w: %v", network.ErrNotListening, err)
		f.record(ev, api.OutcomeFailed, start, err)
		return err
	}
	ev.To = dest.String()

	inbound, ok := f.Registry.Lookup(dest)
	if !ok {
		out.Reply.Drop()
		err := fmt.Errorf("%w: %s is not a cluster member", network.ErrNotListening, dest)
		f.record(ev, api.OutcomeFailed, start, err)
		return err
	}

	slot := network.NewReplySlot()
	if err := inbound.Push(network.IncomingRequest{From: f.Addr, Request: out.Request, Reply: slot}); err != nil {
		out.Reply.Drop()
		err = fmt.Errorf("%w: %s: %v", network.ErrNotListening, dest, err)
		f.record(ev, api.OutcomeFailed, start, err)
		return err
	}

	outcome := api.OutcomeDelivered
	reply, err := slot.Receive(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Reply.Drop()
			return ctxErr
		}
		reply = network.Reply{Err: fmt.Errorf("%s %s: %w", ev.Method, dest, err)}
		outcome = api.OutcomeNotAnswering
	}

	if err := out.Reply.Send(reply); err != nil {
		if reply.Response != nil && reply.Response.Body != nil {
			_ = reply.Response.Body.Close()
		}
		err = fmt.Errorf("%w: caller of %s %s is gone: %v", network.ErrNotListening, ev.Method, ev.Path, err)
		f.record(ev, api.OutcomeFailed, start, err)
		return err
	}

	var replyErr error
	if reply.Err != nil {
		replyErr = reply.Err
		log.Debug().Err(reply.Err).Str("path", ev.Path).Msg("Request not answered")
	}
	f.record(ev, outcome, start, replyErr)
	return nil
}

func (f *Fabric) record(ev arrow.TraceEvent, outcome string, start time.Time, err error) {
	ev.Outcome = outcome
	ev.Latency = time.Since(start)
	if err != nil {
		ev.Error = err.Error()
	}
	f.Metrics.ObserveForward(outcome, ev.Latency)
	f.Trace.Add(ev)
}
