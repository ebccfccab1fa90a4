// Package protocol defines the JSON-RPC envelope codec and the wire types
// exchanged between clients and the engine: requests, responses,
// notifications, negotiated capability sets, and the typed parameter and
// result payloads of every control-plane method.
package protocol
