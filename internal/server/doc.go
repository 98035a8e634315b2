// Package server implements the relaychat presence-tracked message relay.
//
// A Hub owns the lifecycle of every websocket Client. The Gateway binds each
// Client to a username in the Registry and dispatches its inbound frames to
// the Router and the GroupDirectory. Routing is best-effort and at-most-once:
// frames for users that are not connected are dropped.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers.
package server
