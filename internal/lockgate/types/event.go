package types

import "time"

// EventSource identifies which upstream channel delivered a RawEvent.
type EventSource string

const (
	SourceWebhook EventSource = "webhook"
	SourcePoll    EventSource = "poll"
)

// CredentialKind describes how the person presented themselves at the lock.
type CredentialKind string

const (
	CredentialFingerprint CredentialKind = "fingerprint"
	CredentialCard        CredentialKind = "card"
	CredentialName        CredentialKind = "name"
	CredentialUnknown     CredentialKind = "unknown"
)

// RawEvent is a single inbound lock notification, either from the vendor
// callback or synthesized from a polled lock record.
type RawEvent struct {
	LockID          string         `json:"lock_id"`
	CredentialToken string         `json:"credential_token,omitempty"` // display name or free-text token
	FingerprintID   string         `json:"fingerprint_id,omitempty"`
	CardNumber      string         `json:"card_number,omitempty"`
	EventType       CredentialKind `json:"event_type,omitempty"`
	LockMAC         string         `json:"lock_mac,omitempty"`
	BatteryPct      *int           `json:"battery_pct,omitempty"`
	Source          EventSource    `json:"source"`
	Timestamp       time.Time      `json:"timestamp"`
}

// HasIdentityTokens reports whether the event carries anything that could
// resolve to a user.
func (e RawEvent) HasIdentityTokens() bool {
	return e.FingerprintID != "" || e.CardNumber != "" || e.CredentialToken != ""
}

// HandleStatus is the terminal state an event reached inside the engine.
type HandleStatus string

const (
	StatusEmitted      HandleStatus = "emitted"
	StatusDeduplicated HandleStatus = "deduplicated"
	StatusIgnored      HandleStatus = "ignored"
)

// HandleResult is what the transport layer gets back for every well-formed
// event.  Accepted is always true; malformed events are rejected with an
// error before a result is produced.
type HandleResult struct {
	Accepted bool            `json:"accepted"`
	Status   HandleStatus    `json:"status"`
	Decision *AccessDecision `json:"decision,omitempty"`
}
