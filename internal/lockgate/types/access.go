package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Outcome string

const (
	OutcomeAuthorized Outcome = "Authorized"
	OutcomeDenied     Outcome = "Denied"
)

// Denial reasons.  These strings are persisted and broadcast as-is.
const (
	ReasonUserNotFound      = "user not found"
	ReasonOutsideSchedule   = "outside schedule"
	ReasonInsufficientLevel = "insufficient access level"
	ReasonInternalError     = "internal error"
)

type User struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	FingerprintID string `json:"fingerprint_id,omitempty"`
	CardID        string `json:"card_id,omitempty"`
	AccessLevel   int    `json:"access_level"`
}

// DisplayName is the concatenated name locks report for name-keyed
// credentials.
func (u User) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// TimeOfDay is a wall-clock time expressed as seconds since local midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time of day %q: want HH:MM[:SS]", s)
	}
	limits := []int{23, 59, 59}
	var secs int
	mult := []int{3600, 60, 1}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("time of day %q: bad component %q", s, p)
		}
		secs += n * mult[i]
	}
	return TimeOfDay(secs), nil
}

// TimeOfDayOf returns the seconds since midnight of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

type Zone struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	MinSecurityLevel int        `json:"min_security_level"`
	ScheduleStart    *TimeOfDay `json:"schedule_start,omitempty"`
	ScheduleEnd      *TimeOfDay `json:"schedule_end,omitempty"`
	Description      string     `json:"description,omitempty"`
}

type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "Active"
	DeviceInactive DeviceStatus = "Inactive"
)

type Device struct {
	ID          string       `json:"id"`
	ZoneID      *int64       `json:"zone_id,omitempty"`
	Name        string       `json:"name"`
	MACAddress  string       `json:"mac_address,omitempty"`
	WifiCapable bool         `json:"wifi_capable"`
	Status      DeviceStatus `json:"status"`
	BatteryPct  *int         `json:"battery_pct,omitempty"`
	LastSeenAt  time.Time    `json:"last_seen_at"`
}

// AccessDecision is produced exactly once per accepted event and never
// mutated afterwards.
type AccessDecision struct {
	ID             string         `json:"id"`
	UserID         *int64         `json:"user_id,omitempty"`
	UserName       string         `json:"user_name,omitempty"`
	ZoneID         *int64         `json:"zone_id,omitempty"`
	DeviceID       string         `json:"device_id"`
	CredentialKind CredentialKind `json:"credential_kind"`
	Outcome        Outcome        `json:"outcome"`
	DenialReason   *string        `json:"denial_reason,omitempty"`
	CardNumber     *string        `json:"card_number,omitempty"`
	Source         EventSource    `json:"source"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

func (d AccessDecision) Authorized() bool { return d.Outcome == OutcomeAuthorized }

// Reason returns the denial reason or "" for authorized decisions.
func (d AccessDecision) Reason() string {
	if d.DenialReason == nil {
		return ""
	}
	return *d.DenialReason
}

// AuditEntry is an operator-facing log line for side effects that are not
// access decisions themselves (device registration, unlock attempts,
// retention passes).
type AuditEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AuditDeviceRegistered = "DEVICE_REGISTERED"
	AuditUnlockCloud      = "UNLOCK_CLOUD"
	AuditUnlockBridge     = "UNLOCK_BRIDGE"
	AuditRecordsPruned    = "RECORDS_PRUNED"
)
