package server

import (
	"encoding/json"
	"fmt"
)

// Inbound event types.
const (
	EventRegister         = "register"
	EventSendMessage      = "send-message"
	EventCreateGroup      = "create-group"
	EventSendGroupMessage = "send-group-message"
)

// Outbound event types.
const (
	EventRegistered   = "registered"
	EventMessage      = "message"
	EventGroupCreated = "group-created"
	EventError        = "error"
)

// InboundFrame is the JSON frame a client sends over its websocket. Which
// fields are meaningful depends on Type.
type InboundFrame struct {
	Type      string     `json:"type"`
	Username  string     `json:"username,omitempty"`
	Token     string     `json:"token,omitempty"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	Body      string     `json:"body,omitempty"`
	Message   string     `json:"message,omitempty"`
	Group     *GroupSpec `json:"group,omitempty"`
	GroupName string     `json:"group_name,omitempty"`
	Members   []string   `json:"members,omitempty"`
}

// GroupSpec is the group description carried by a create-group frame.
type GroupSpec struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// text returns the message body, accepting the older "message" field.
func (f InboundFrame) text() string {
	if f.Body != "" {
		return f.Body
	}
	return f.Message
}

func decodeInbound(raw []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frame, nil
}

// SourceKind discriminates direct traffic from group traffic.
type SourceKind string

const (
	SourceDirect SourceKind = "direct"
	SourceGroup  SourceKind = "group"
)

// Source identifies who a delivered message came from. Group is empty for
// direct messages.
type Source struct {
	Kind  SourceKind `json:"kind"`
	Group string     `json:"group,omitempty"`
	From  string     `json:"from"`
}

// DirectSource returns the source of a direct message sent by from.
func DirectSource(from string) Source {
	return Source{Kind: SourceDirect, From: from}
}

// GroupSource returns the source of a message sent by from to group.
func GroupSource(group, from string) Source {
	return Source{Kind: SourceGroup, Group: group, From: from}
}

// Label renders the source the way older clients expect to see it in the
// "from" field: the plain sender, or "<group> [<sender>]" for group traffic.
func (s Source) Label() string {
	if s.Kind == SourceGroup {
		return s.Group + " [" + s.From + "]"
	}
	return s.From
}

// FrameError is the payload of an error frame.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OutboundFrame is the JSON frame the relay writes to a client.
type OutboundFrame struct {
	Type     string      `json:"type"`
	Username string      `json:"username,omitempty"`
	Source   *Source     `json:"source,omitempty"`
	From     string      `json:"from,omitempty"`
	Body     string      `json:"body,omitempty"`
	Group    *Group      `json:"group,omitempty"`
	Error    *FrameError `json:"error,omitempty"`
}

func messageFrame(src Source, body string) OutboundFrame {
	return OutboundFrame{
		Type:   EventMessage,
		Source: &src,
		From:   src.Label(),
		Body:   body,
	}
}

func groupCreatedFrame(g Group) OutboundFrame {
	return OutboundFrame{Type: EventGroupCreated, Group: &g}
}

func registeredFrame(username string) OutboundFrame {
	return OutboundFrame{Type: EventRegistered, Username: username}
}

func errorFrame(err error) OutboundFrame {
	return OutboundFrame{
		Type:  EventError,
		Error: &FrameError{Code: errorCode(err), Message: err.Error()},
	}
}

func encodeOutbound(frame OutboundFrame) ([]byte, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", frame.Type, err)
	}
	return payload, nil
}
