package amqp

import (
	"encoding/json"
	"time"
)

// Message kinds understood by the mirror worker.
const (
	KindUpsert = "upsert"
	KindDelete = "delete"
)

// TxSyncMessage tells the mirror worker that one transaction changed.
// It carries only the id; the worker fetches the full row from the local
// database, so a stale message can never overwrite fresher data.
type TxSyncMessage struct {
	ID        string    `json:"id"`
	MemberID  int64     `json:"member_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTxSyncMessage(id string, memberID int64, kind string) *TxSyncMessage {
	return &TxSyncMessage{
		ID:        id,
		MemberID:  memberID,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

func (m *TxSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TxSyncMessageFromJSON(data []byte) (*TxSyncMessage, error) {
	var msg TxSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
