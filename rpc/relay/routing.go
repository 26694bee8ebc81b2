package relay

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
	"time"
)

// route forwards one envelope received from p
func (s *Server) route(from *peer, env common.Envelope) {
	cmd, err := env.Kind()
	if err != nil {
		if errors.Is(err, common.ErrUnknownCommand) {
			Logger.Warningf("Dropped unknown command %q from %s", env.Command, from)
		} else {
			Logger.Warningf("Dropped envelope from %s: %v", from, err)
		}
		return
	}
	Logger.Debugf("Routing %s from %s", env, from)

	switch cmd {
	case common.CmdIdentify:
		Logger.Warningf("Ignored repeated IDENTIFY from %s", from)

	case common.CmdSend:
		inner, err := env.Unwrap()
		if err != nil {
			Logger.Warningf("Dropped SEND from %s: %v", from, err)
			return
		}
		inner.Source = from.id.String()
		s.deliver(from, env.Target, inner, false)

	case common.CmdRequest:
		nonce, _ := env.Args.Get("nonce")
		n, _ := nonce.(string)
		if n == "" {
			Logger.Warningf("Dropped REQUEST without nonce from %s", from)
			return
		}
		r := route{requester: from.id, expires: time.Now().Add(s.config.RouteTTL)}
		s.routes.Store(n, r)
		s.expiryMu.Lock()
		s.expiry.Set(n, r.expires)
		s.expiryMu.Unlock()
		env.Source = from.id.String()
		s.deliver(from, env.Target, env, true)

	case common.CmdResponse:
		r, ok := s.routes.Load(env.Target)
		if !ok || time.Now().After(r.expires) {
			Logger.Debugf("Dropped response to unknown request %q from %s", env.Target, from)
			metrics.RelayDropped.Inc()
			return
		}
		env.Source = from.id.String()
		s.deliver(from, r.requester.String(), env, false)

	default:
		// plain commands are forwarded to their target like a SEND
		env.Source = from.id.String()
		target := env.Target
		env.Target = ""
		s.deliver(from, target, env, false)
	}
}

// deliver queues env for the target. A broadcast reaches every node, the sender
// only if includeSender is set. Clients never receive broadcasts.
func (s *Server) deliver(from *peer, target string, env common.Envelope, includeSender bool) {
	frame, err := s.serializer.Serialize(env)
	if err != nil {
		Logger.Errorf("Failed to encode %s: %v", env, err)
		return
	}

	if target == "" || target == common.Broadcast {
		s.peers.Range(func(id common.NodeID, p *peer) bool {
			if p.role != common.RoleNode || (p == from && !includeSender) {
				return true
			}
			s.push(p, frame)
			return true
		})
		return
	}

	id, err := common.ParseNodeID(target)
	if err != nil {
		Logger.Warningf("Dropped %s from %s: invalid target %q", env.Command, from, target)
		metrics.RelayDropped.Inc()
		return
	}
	p, ok := s.peers.Load(id)
	if !ok {
		Logger.Warningf("Dropped %s from %s: node %s is not connected", env.Command, from, id)
		metrics.RelayDropped.Inc()
		return
	}
	s.push(p, frame)
}

func (s *Server) push(p *peer, frame []byte) {
	if !p.out.Push(frame) {
		metrics.RelayDropped.Inc()
		return
	}
	metrics.RelayDelivered.Inc()
	if backlog := p.out.Len(); backlog > s.config.QueueWarnSize {
		Logger.Warningf("Outbound queue of %s holds %d frames", p, backlog)
	}
}

// expireRoutes forgets request routes after their TTL
func (s *Server) expireRoutes(ctx context.Context) {
	ticker := time.NewTicker(s.config.RouteTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.expiryMu.Lock()
			expired := s.expiry.PopExpired(now)
			s.expiryMu.Unlock()
			for _, nonce := range expired {
				s.routes.Delete(nonce)
			}
			if len(expired) > 0 {
				Logger.Debugf("Forgot %d expired request route(s)", len(expired))
			}
		}
	}
}
