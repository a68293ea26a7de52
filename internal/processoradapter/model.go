// Package processoradapter translates processor-native webhook events
// into the internal authorization/settlement pipelines and maintains the
// correlation between a processor's own transaction id and the internal
// authorization id.
//
// Card tokenization itself is out of scope; the
// token carried on an event is treated as the opaque identifier the
// issuing flow already handed the processor, which equals the internal
// card id.
package processoradapter

import "time"

// Mapping is the durable, immutable correlation created the first time
// an authorization event from a given processor transaction id is
// APPROVED. DECLINED authorizations never create one.
type Mapping struct {
	ProcessorTransactionID string
	ProcessorName          string
	AuthorizationID        string
	CardToken              string
	CreatedAt              time.Time
}

// AuthorizationEvent is a processor-native authorization webhook.
type AuthorizationEvent struct {
	ProcessorTransactionID string
	ProcessorName          string
	CardToken              string
	AmountMinor            int64
	Currency               string
	MerchantName           string
	MCC                    string
	MerchantCity           string
	MerchantCountry        string
	IdempotencyKey         string
}

// ClearingEvent is a processor-native clearing webhook.
type ClearingEvent struct {
	ProcessorTransactionID string
	ClearingAmountMinor    int64
	Currency               string
	IdempotencyKey         string
}

// ReversalEvent is a processor-native reversal webhook.
type ReversalEvent struct {
	ProcessorTransactionID string
	ReversalAmountMinor    int64
	Currency               string
	IdempotencyKey         string
}

// EventResponse is returned to the processor for an authorization event.
type EventResponse struct {
	AuthorizationID string
	Approved        bool
	DeclineReason   string
}
