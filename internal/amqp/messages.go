package amqp

import (
	"encoding/json"
	"time"
)

// Reasons carried by invalidation messages.
const (
	ReasonMigration = "migration"
	ReasonPayment   = "payment"
	ReasonRestore   = "restore"
)

// SummariesInvalidatedMessage tells other processes that their cached
// contract summaries are stale. An empty ContractIDs list means every
// contract.
type SummariesInvalidatedMessage struct {
	RunID       string    `json:"run_id,omitempty"`
	Reason      string    `json:"reason"`
	ContractIDs []string  `json:"contract_ids,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewSummariesInvalidatedMessage(reason, runID string, contractIDs []string) *SummariesInvalidatedMessage {
	return &SummariesInvalidatedMessage{
		RunID:       runID,
		Reason:      reason,
		ContractIDs: contractIDs,
		Timestamp:   time.Now(),
	}
}

// All reports whether every cached summary must be dropped.
func (m *SummariesInvalidatedMessage) All() bool {
	return len(m.ContractIDs) == 0
}

// ToJSON converts the message to JSON bytes
func (m *SummariesInvalidatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SummariesInvalidatedMessageFromJSON creates a message from JSON bytes
func SummariesInvalidatedMessageFromJSON(data []byte) (*SummariesInvalidatedMessage, error) {
	var msg SummariesInvalidatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
