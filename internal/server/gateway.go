package server

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// TokenVerifier checks a registration token and returns the username it was
// issued to.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

type registerEvent struct {
	Username string `validate:"required,max=64"`
	Token    string
}

type directEvent struct {
	To   string `validate:"required,max=64"`
	Body string `validate:"required"`
}

type createGroupEvent struct {
	Name    string   `validate:"required,max=64"`
	Members []string `validate:"required,min=1,dive,required,max=64"`
}

type groupMessageEvent struct {
	Group   string   `validate:"required,max=64"`
	Body    string   `validate:"required"`
	Members []string `validate:"required,min=1,dive,required,max=64"`
}

// Gateway binds connections to usernames and turns their inbound frames into
// Registry, Router and GroupDirectory calls. Malformed frames are answered
// with an error frame on the offending connection and go no further.
type Gateway struct {
	registry *Registry
	router   *Router
	groups   *GroupDirectory
	tokens   TokenVerifier
	validate *validator.Validate
	log      zerolog.Logger
}

// NewGateway wires a Gateway. tokens may be nil, in which case the username
// of a register frame is trusted as is.
func NewGateway(registry *Registry, router *Router, groups *GroupDirectory, tokens TokenVerifier, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		router:   router,
		groups:   groups,
		tokens:   tokens,
		validate: validator.New(),
		log:      logger,
	}
}

// Connect is called when a new connection is accepted. The connection stays
// inert until it registers.
func (g *Gateway) Connect(c *Client) {
	g.log.Debug().Str("conn_id", c.ID()).Str("remote_addr", c.Addr()).Msg("connection accepted")
}

// Disconnect removes the connection from the Registry. It is a no-op for a
// connection that never registered or whose username has since been taken
// over by a newer connection.
func (g *Gateway) Disconnect(c *Client) {
	for _, username := range g.registry.Unregister(c) {
		g.log.Info().Str("username", username).Str("conn_id", c.ID()).Msg("user went offline")
	}
}

// HandleFrame decodes, validates and dispatches one inbound frame.
func (g *Gateway) HandleFrame(c *Client, raw []byte) {
	if err := g.handle(c, raw); err != nil {
		g.log.Debug().Err(err).Str("conn_id", c.ID()).Msg("rejected frame")
		g.reply(c, errorFrame(err))
	}
}

func (g *Gateway) handle(c *Client, raw []byte) error {
	frame, err := decodeInbound(raw)
	if err != nil {
		return err
	}

	switch frame.Type {
	case EventRegister:
		return g.register(c, frame)
	case EventSendMessage:
		return g.sendDirect(c, frame)
	case EventCreateGroup:
		return g.createGroup(c, frame)
	case EventSendGroupMessage:
		return g.sendGroupMessage(c, frame)
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
	}
}

func (g *Gateway) register(c *Client, frame InboundFrame) error {
	ev := registerEvent{Username: frame.Username, Token: frame.Token}
	if err := g.check(ev); err != nil {
		return err
	}

	if g.tokens != nil {
		subject, err := g.tokens.VerifySubject(ev.Token)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if subject != ev.Username {
			return fmt.Errorf("%w: issued to another user", ErrInvalidToken)
		}
	}

	previous, ok := g.registry.Register(ev.Username, c)
	if !ok {
		return nil
	}
	c.bind(ev.Username)

	event := g.log.Info().Str("username", ev.Username).Str("conn_id", c.ID())
	if previous != nil && previous != c {
		event = event.Str("replaced_conn_id", previous.ID())
	}
	event.Msg("user registered")

	g.reply(c, registeredFrame(ev.Username))
	return nil
}

func (g *Gateway) sendDirect(c *Client, frame InboundFrame) error {
	from, err := g.sender(c, frame)
	if err != nil {
		return err
	}

	ev := directEvent{To: frame.To, Body: frame.text()}
	if err := g.check(ev); err != nil {
		return err
	}

	g.router.RouteDirect(Envelope{From: from, To: ev.To, Body: ev.Body})
	return nil
}

func (g *Gateway) createGroup(c *Client, frame InboundFrame) error {
	from, err := g.sender(c, frame)
	if err != nil {
		return err
	}
	if frame.Group == nil {
		return fmt.Errorf("%w: missing group", ErrMalformedFrame)
	}

	ev := createGroupEvent{Name: frame.Group.Name, Members: frame.Group.Members}
	if err := g.check(ev); err != nil {
		return err
	}

	_, err = g.groups.Create(ev.Name, ev.Members, from)
	return err
}

func (g *Gateway) sendGroupMessage(c *Client, frame InboundFrame) error {
	from, err := g.sender(c, frame)
	if err != nil {
		return err
	}

	ev := groupMessageEvent{Group: frame.GroupName, Body: frame.text(), Members: frame.Members}
	if err := g.check(ev); err != nil {
		return err
	}

	delivered := g.router.RouteGroup(ev.Group, from, ev.Body, ev.Members)
	g.log.Debug().Str("group", ev.Group).Str("from", from).Int("delivered", delivered).Msg("group message routed")
	return nil
}

// sender returns the identity c registered with. An explicit from field must
// agree with it.
func (g *Gateway) sender(c *Client, frame InboundFrame) (string, error) {
	username := c.Username()
	if username == "" {
		return "", ErrNotRegistered
	}
	if frame.From != "" && frame.From != username {
		return "", ErrSenderMismatch
	}
	return username, nil
}

func (g *Gateway) check(ev any) error {
	if err := g.validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", ErrMalformedFrame, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func (g *Gateway) reply(c *Client, frame OutboundFrame) {
	payload, err := encodeOutbound(frame)
	if err != nil {
		g.log.Error().Err(err).Msg("encode reply")
		return
	}
	if !c.trySend(payload) {
		g.log.Warn().Str("conn_id", c.ID()).Str("type", frame.Type).Msg("could not queue reply")
	}
}
