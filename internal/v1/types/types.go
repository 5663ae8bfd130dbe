// Package types defines the wire protocol envelope and the identifier types
// shared across the signaling server.
package types

import "encoding/json"

// ClientIdType is the server-assigned identifier of a connected peer.
type ClientIdType string

// RoomIdType is the human-exchanged rendezvous code naming a room.
// It is opaque to the server; no key material is ever derived from it.
type RoomIdType string

// MessageType discriminates signaling messages on the wire.
type MessageType string

const (
	// Relay types: opaque payloads forwarded between peers.
	MsgTypeOffer           MessageType = "offer"
	MsgTypeAnswer          MessageType = "answer"
	MsgTypeICECandidate    MessageType = "ice-candidate"
	MsgTypeHandshakeInit   MessageType = "handshake-init"
	MsgTypeHandshakeVerify MessageType = "handshake-verify"

	// Hub-originated notifications.
	MsgTypeConnected   MessageType = "connected"
	MsgTypeError       MessageType = "error"
	MsgTypePeerJoined  MessageType = "peer-joined"
	MsgTypePeerLeft    MessageType = "peer-left"
	MsgTypeRoomExpired MessageType = "room-expired"
)

// IsRelay reports whether the type is forwarded peer-to-peer without
// interpretation. handshake-init is excluded: the hub consumes it.
func (t MessageType) IsRelay() bool {
	switch t {
	case MsgTypeOffer, MsgTypeAnswer, MsgTypeICECandidate, MsgTypeHandshakeVerify:
		return true
	}
	return false
}

// Message is the envelope for all signaling traffic. The JSON key spelling
// (roomId, clientId) is part of the protocol and must not change.
//
// From is always rewritten by the hub to the sender's server-assigned id
// before routing; a recipient can trust no other sender identifier.
// Payload is never inspected by the hub.
type Message struct {
	Type     MessageType     `json:"type"`
	From     ClientIdType    `json:"from,omitempty"`
	To       ClientIdType    `json:"to,omitempty"`
	RoomID   RoomIdType      `json:"roomId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	ClientID ClientIdType    `json:"clientId,omitempty"`
}

// NewErrorMessage builds an in-band protocol-violation report. The reason is
// carried as a JSON string payload.
func NewErrorMessage(reason string) *Message {
	data, _ := json.Marshal(reason)
	return &Message{
		Type:    MsgTypeError,
		Payload: data,
	}
}
