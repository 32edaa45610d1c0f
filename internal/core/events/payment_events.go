package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentRecorded           = "payment.recorded"
	EventTypePaymentVerificationFailed = "payment.verification_failed"
)

type PaymentRecordedEvent struct {
	BaseEvent
	DocID    string `json:"doc_id"`
	Gateway  string `json:"gateway"`
	Status   string `json:"status"`
	Source   string `json:"source"`
	Merge    bool   `json:"merge"`
	Currency string `json:"currency"`
}

func NewPaymentRecordedEvent(docID, gateway, status, source, currency string, merge bool) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRecorded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"doc_id":   docID,
				"gateway":  gateway,
				"status":   status,
				"source":   source,
				"merge":    merge,
				"currency": currency,
			},
		},
		DocID:    docID,
		Gateway:  gateway,
		Status:   status,
		Source:   source,
		Merge:    merge,
		Currency: currency,
	}
}

type PaymentVerificationFailedEvent struct {
	BaseEvent
	Gateway    string `json:"gateway"`
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

func NewPaymentVerificationFailedEvent(gateway, identifier, reason string) *PaymentVerificationFailedEvent {
	return &PaymentVerificationFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentVerificationFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway":    gateway,
				"identifier": identifier,
				"reason":     reason,
			},
		},
		Gateway:    gateway,
		Identifier: identifier,
		Reason:     reason,
	}
}
