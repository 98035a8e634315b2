package server

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Envelope is a direct message in flight. It only exists while it is being
// routed.
type Envelope struct {
	From string
	To   string
	Body string
}

// Router delivers messages to the live connections the Registry knows about.
// Delivery is best-effort and at-most-once: offline recipients and full
// outbound buffers drop the frame and the sender is never told.
type Router struct {
	registry *Registry
	log      zerolog.Logger
}

// NewRouter returns a Router resolving recipients through registry.
func NewRouter(registry *Registry, logger zerolog.Logger) *Router {
	return &Router{registry: registry, log: logger}
}

// RouteDirect delivers env to env.To if that user is online. It never echoes
// back to the sender's own connection. It reports whether a frame was queued.
func (r *Router) RouteDirect(env Envelope) bool {
	if env.To == env.From {
		return false
	}

	target, ok := r.registry.Lookup(env.To)
	if !ok {
		r.log.Debug().Str("from", env.From).Str("to", env.To).Msg("recipient offline; dropping message")
		return false
	}
	if sender, ok := r.registry.Lookup(env.From); ok && sender == target {
		return false
	}

	payload, err := encodeOutbound(messageFrame(DirectSource(env.From), env.Body))
	if err != nil {
		r.log.Error().Err(err).Msg("encode direct message")
		return false
	}
	return r.deliver(target, env.To, payload)
}

// RouteGroup delivers body to every member of the supplied member list except
// from. The list is the one the sender's client knows at send time; the
// GroupDirectory is not consulted. It returns the number of frames queued.
func (r *Router) RouteGroup(group, from, body string, members []string) int {
	payload, err := encodeOutbound(messageFrame(GroupSource(group, from), body))
	if err != nil {
		r.log.Error().Err(err).Msg("encode group message")
		return 0
	}

	var skip *Client
	if sender, ok := r.registry.Lookup(from); ok {
		skip = sender
	}

	recipients := lo.Filter(lo.Uniq(members), func(member string, _ int) bool {
		return member != from
	})
	return r.fanOut(recipients, skip, payload)
}

// NotifyGroupCreated sends a group-created frame to every member of g that
// is online right now. Offline members never learn about it from the relay.
func (r *Router) NotifyGroupCreated(g Group) int {
	payload, err := encodeOutbound(groupCreatedFrame(g))
	if err != nil {
		r.log.Error().Err(err).Msg("encode group-created notification")
		return 0
	}
	return r.fanOut(g.Members, nil, payload)
}

// fanOut queues payload for each online member, at most once per connection,
// never to skip.
func (r *Router) fanOut(members []string, skip *Client, payload []byte) int {
	seen := make(map[*Client]struct{}, len(members))
	delivered := 0

	for _, member := range members {
		target, ok := r.registry.Lookup(member)
		if !ok || target == skip {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		if r.deliver(target, member, payload) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) deliver(target *Client, username string, payload []byte) bool {
	if target.trySend(payload) {
		return true
	}
	r.log.Warn().Str("to", username).Str("conn_id", target.ID()).Msg("outbound buffer full or closed; dropping frame")
	return false
}
