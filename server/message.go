package server

import (
	"encoding/json"

	"github.com/alimasry/typing-replay/driver"
	"github.com/alimasry/typing-replay/replay"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin  = "join"
	MsgLeave = "leave"
	MsgPlay  = "play"
	MsgStop  = "stop"
	MsgDoc   = "doc"
	MsgFrame = "frame"
	MsgError = "error"
)

// ClientMessage is a message from client to server.
//
// A play message either names two stored revisions (From, To) or carries a
// starting text and the sequence to replay over it (Content, Ops).
type ClientMessage struct {
	Type    string           `json:"type"`
	DocID   string           `json:"docId,omitempty"`
	From    *int             `json:"from,omitempty"`
	To      *int             `json:"to,omitempty"`
	Content string           `json:"content,omitempty"`
	Ops     *replay.Sequence `json:"ops,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type       string                 `json:"type"`
	DocID      string                 `json:"docId,omitempty"`
	Content    string                 `json:"content"`
	Revision   int                    `json:"revision"`
	ClientID   string                 `json:"clientId,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Color      string                 `json:"color,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Clients    []ClientInfo           `json:"clients,omitempty"`
	Generation uint64                 `json:"generation,omitempty"`
	Step       int                    `json:"step,omitempty"`
	Done       bool                   `json:"done,omitempty"`
	Cursor     *replay.CursorSnapshot `json:"cursor,omitempty"`
	Edit       *replay.Edit           `json:"edit,omitempty"`
}

// ClientInfo describes a connected viewer.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

func frameMessage(docID string, f driver.Frame) ServerMessage {
	cursor := replay.Snapshot(f.Cursor)
	msg := ServerMessage{
		Type:       MsgFrame,
		DocID:      docID,
		Content:    f.Text,
		Generation: f.Generation,
		Step:       f.Step,
		Done:       f.Done,
		Cursor:     &cursor,
		Edit:       f.Edit,
	}
	if f.Err != nil {
		msg.Message = f.Err.Error()
	}
	return msg
}
