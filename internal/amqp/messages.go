package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"spendly/internal/docstore"
)

// ChangeMessage announces one committed document write. It carries no
// document body; consumers read the current document themselves.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	Op         string    `json:"op"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewChangeMessage builds the message for change. The owner is taken from
// the written data when present.
func NewChangeMessage(change docstore.Change) *ChangeMessage {
	msg := &ChangeMessage{
		Collection: docstore.CollectionID(change.Collection),
		ID:         change.ID,
		Op:         string(change.Op),
		Timestamp:  change.At,
	}
	if uid, ok := change.Data["userId"].(string); ok {
		msg.UserID = uid
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects ones that name no
// document or an unknown operation.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" || msg.ID == "" {
		return nil, errors.New("change message without collection or id")
	}
	switch docstore.ChangeOp(msg.Op) {
	case docstore.OpCreate, docstore.OpUpdate, docstore.OpDelete:
	default:
		return nil, errors.New("change message with unknown op " + msg.Op)
	}
	return &msg, nil
}
