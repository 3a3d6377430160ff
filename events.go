package collab

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event names, as sent by clients on the real-time channel.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventCursor         = "cursor"
	EventBlockEdit      = "block:edit"
	EventBlockCreate    = "block:create"
	EventBlockDelete    = "block:delete"
	EventCommentAdd     = "comment:add"
	EventCommentResolve = "comment:resolve"
)

// Outbound event names.
const (
	EventSession       = "session"
	EventCollaboration = "collaboration"
	EventError         = "error"
)

// Collaboration sub-events carried in CollaborationEvent.Event.
const (
	CollabParticipantJoined = "participant-joined"
	CollabParticipantLeft   = "participant-left"
	CollabCursorMoved       = "cursor-moved"
	CollabBlockCreated      = "block-created"
	CollabBlockUpdated      = "block-updated"
	CollabBlockDeleted      = "block-deleted"
	CollabCommentAdded      = "comment-added"
	CollabCommentResolved   = "comment-resolved"
)

// InboundEvent is the closed set of events a connection may send. Handlers
// dispatch on the concrete type, not on the event-name string.
type InboundEvent interface {
	Channel() Channel
	isInbound()
}

// JoinEvent requests membership in a document channel.
type JoinEvent struct {
	Kind        string `json:"documentKind"`
	DocumentID  string `json:"documentId"`
	DisplayName string `json:"displayName,omitempty"`
}

// LeaveEvent requests departure from a document channel.
type LeaveEvent struct {
	Kind       string `json:"documentKind"`
	DocumentID string `json:"documentId"`
}

// CursorEvent reports the sender's cursor position.
type CursorEvent struct {
	Kind       string `json:"documentKind"`
	DocumentID string `json:"documentId"`
	BlockID    string `json:"blockId"`
	Offset     int    `json:"offset"`
}

// BlockEditEvent carries one edit operation against a block.
type BlockEditEvent struct {
	Kind       string    `json:"documentKind"`
	DocumentID string    `json:"documentId"`
	BlockID    string    `json:"blockId"`
	Operation  Operation `json:"operation"`
}

// BlockCreateEvent asks for a new block. Clients may omit the document kind
// on block events; an absent kind means a sermon.
type BlockCreateEvent struct {
	Kind       string `json:"documentKind,omitempty"`
	DocumentID string `json:"documentId"`
	ParentID   string `json:"parentId,omitempty"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	Order      int    `json:"order"`
}

// BlockDeleteEvent asks for a block's removal.
type BlockDeleteEvent struct {
	Kind       string `json:"documentKind,omitempty"`
	DocumentID string `json:"documentId"`
	BlockID    string `json:"blockId"`
}

// CommentAddEvent attaches a comment to a document or one of its blocks.
type CommentAddEvent struct {
	Kind       string `json:"documentKind"`
	DocumentID string `json:"documentId"`
	BlockID    string `json:"blockId,omitempty"`
	Content    string `json:"content"`
}

// CommentResolveEvent marks a comment resolved.
type CommentResolveEvent struct {
	Kind       string `json:"documentKind"`
	DocumentID string `json:"documentId"`
	CommentID  string `json:"commentId"`
}

// KindSermon is the default document kind for block events that omit one.
const KindSermon = "sermon"

func orSermon(kind string) string {
	if kind == "" {
		return KindSermon
	}
	return kind
}

func (e JoinEvent) Channel() Channel   { return Channel{Kind: e.Kind, DocumentID: e.DocumentID} }
func (e LeaveEvent) Channel() Channel  { return Channel{Kind: e.Kind, DocumentID: e.DocumentID} }
func (e CursorEvent) Channel() Channel { return Channel{Kind: e.Kind, DocumentID: e.DocumentID} }
func (e BlockEditEvent) Channel() Channel {
	return Channel{Kind: e.Kind, DocumentID: e.DocumentID}
}
func (e BlockCreateEvent) Channel() Channel {
	return Channel{Kind: orSermon(e.Kind), DocumentID: e.DocumentID}
}
func (e BlockDeleteEvent) Channel() Channel {
	return Channel{Kind: orSermon(e.Kind), DocumentID: e.DocumentID}
}
func (e CommentAddEvent) Channel() Channel {
	return Channel{Kind: e.Kind, DocumentID: e.DocumentID}
}
func (e CommentResolveEvent) Channel() Channel {
	return Channel{Kind: e.Kind, DocumentID: e.DocumentID}
}

func (JoinEvent) isInbound()           {}
func (LeaveEvent) isInbound()          {}
func (CursorEvent) isInbound()         {}
func (BlockEditEvent) isInbound()      {}
func (BlockCreateEvent) isInbound()    {}
func (BlockDeleteEvent) isInbound()    {}
func (CommentAddEvent) isInbound()     {}
func (CommentResolveEvent) isInbound() {}

// DecodeInbound parses a wire frame {"event": <name>, ...payload} into its
// typed event. Unknown names and malformed payloads yield ErrValidation.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var (
		ev  InboundEvent
		err error
	)
	switch head.Event {
	case EventJoin:
		var e JoinEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventLeave:
		var e LeaveEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventCursor:
		var e CursorEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventBlockEdit:
		var e BlockEditEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventBlockCreate:
		var e BlockCreateEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventBlockDelete:
		var e BlockDeleteEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventCommentAdd:
		var e CommentAddEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventCommentResolve:
		var e CommentResolveEvent
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrValidation, head.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	ch := ev.Channel()
	if ch.Kind == "" || ch.DocumentID == "" {
		return nil, fmt.Errorf("%w: event %q missing channel identity", ErrValidation, head.Event)
	}
	return ev, nil
}

// CursorInfo is a participant's position within the document.
type CursorInfo struct {
	BlockID string `json:"blockId"`
	Offset  int    `json:"offset"`
}

// ParticipantInfo is the wire form of one session participant.
type ParticipantInfo struct {
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	Cursor      *CursorInfo `json:"cursor,omitempty"`
	LastActive  time.Time   `json:"lastActive"`
}

// SessionSnapshot is the full-roster view delivered to a joiner. Locks and
// the operation log are deliberately excluded.
type SessionSnapshot struct {
	SessionID    string            `json:"sessionId"`
	Participants []ParticipantInfo `json:"participants"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
}

// CollaborationEvent is the tagged outbound union broadcast on state changes.
type CollaborationEvent struct {
	Event     string    `json:"event"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// ErrorEvent is delivered only to the connection whose request failed.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeSnapshot frames a session snapshot for the wire.
func EncodeSnapshot(s SessionSnapshot) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: EventSession, Data: s})
}

// EncodeCollaboration frames a collaboration event for the wire.
func EncodeCollaboration(e CollaborationEvent) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: EventCollaboration, Data: e})
}

// EncodeError frames an error event for the wire.
func EncodeError(e ErrorEvent) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: EventError, Data: e})
}
