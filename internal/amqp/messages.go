package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"feeledger/internal/core"
)

// PaymentRecordedMessage announces a committed fee transaction. The worker
// reloads the full row from the database, so only identifiers travel.
type PaymentRecordedMessage struct {
	TransactionID int64     `json:"transaction_id"`
	StudentID     int64     `json:"student_id"`
	Month         string    `json:"payment_month"`
	AmountPaise   int64     `json:"amount_paise"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewPaymentRecordedMessage(tx core.FeeTransaction) *PaymentRecordedMessage {
	return &PaymentRecordedMessage{
		TransactionID: tx.ID,
		StudentID:     tx.StudentID,
		Month:         tx.Month.String(),
		AmountPaise:   tx.Amount.Paise,
		Timestamp:     time.Now(),
	}
}

func (m *PaymentRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentRecordedMessageFromJSON decodes and sanity-checks a message body.
func PaymentRecordedMessageFromJSON(data []byte) (*PaymentRecordedMessage, error) {
	var msg PaymentRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID <= 0 {
		return nil, errors.New("missing transaction_id")
	}
	return &msg, nil
}
