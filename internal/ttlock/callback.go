package ttlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

var (
	// ErrMissingLockID is returned when a callback names no lock.
	ErrMissingLockID = errors.New("callback has no lockId")
	// ErrBadRecords accompanies a usable event whose "records" value could
	// not be parsed.  Only top-level fields were used.
	ErrBadRecords = errors.New("callback records unreadable")
)

// EventFromCallback builds a raw event from a decoded callback body.
//
// The vendor posts either flat fields or a "records" value holding a JSON
// array (as a string or already decoded); only its first element is used.
// Top-level fields win over record fields.  Numbers and strings are
// accepted interchangeably for ids.
//
// Unreadable records are not fatal: the event is built from the top-level
// fields and returned together with an error wrapping ErrBadRecords.
func EventFromCallback(fields map[string]any, receivedAt time.Time) (types.RawEvent, error) {
	rec, recErr := firstRecord(fields["records"])
	if recErr != nil {
		rec = nil
	}
	// Credential values are passed through verbatim; identity matching is
	// exact.  Everything else is trimmed.
	pick := func(keys ...string) string {
		for _, src := range []map[string]any{fields, rec} {
			for _, k := range keys {
				if s := str(src[k]); strings.TrimSpace(s) != "" {
					return s
				}
			}
		}
		return ""
	}
	field := func(keys ...string) string { return strings.TrimSpace(pick(keys...)) }

	ev := types.RawEvent{
		LockID:          field("lockId", "doorId"),
		CredentialToken: pick("senderUsername", "username", "fingerprintName", "cardName"),
		FingerprintID:   pick("fingerprintNumber", "fingerprintId"),
		CardNumber:      pick("cardNumber", "cardId"),
		LockMAC:         field("lockMac"),
		Source:          types.SourceWebhook,
		Timestamp:       receivedAt.UTC(),
	}

	recordType := field("recordType", "type")
	if n, err := strconv.Atoi(recordType); err == nil {
		ev.EventType = kindForRecordType(n)
		pwd := pick("keyboardPwd")
		switch {
		case n == RecordTypeCard && ev.CardNumber == "":
			ev.CardNumber = pwd
		case n == RecordTypeFingerprint && ev.FingerprintID == "":
			ev.FingerprintID = pwd
		}
	} else if recordType != "" {
		ev.EventType = types.CredentialKind(strings.ToLower(recordType))
	}

	if b := field("electricQuantity"); b != "" {
		if n, err := strconv.Atoi(b); err == nil && n >= 0 && n <= 100 {
			ev.BatteryPct = &n
		}
	}
	if ms := field("lockDate"); ms != "" {
		if n, err := strconv.ParseInt(ms, 10, 64); err == nil && n > 0 {
			ev.Timestamp = time.UnixMilli(n).UTC()
		}
	}

	if ev.LockID == "" {
		return ev, ErrMissingLockID
	}
	if recErr != nil {
		return ev, fmt.Errorf("%w: %v", ErrBadRecords, recErr)
	}
	return ev, nil
}

func firstRecord(v any) (map[string]any, error) {
	var list []any
	switch r := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(r) == "" {
			return nil, nil
		}
		dec := json.NewDecoder(strings.NewReader(r))
		dec.UseNumber()
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
	case []any:
		list = r
	default:
		return nil, fmt.Errorf("parse records: unexpected %T", v)
	}
	if len(list) == 0 {
		return nil, nil
	}
	m, ok := list[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse records: element is %T", list[0])
	}
	return m, nil
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case []string:
		if len(x) > 0 {
			return x[0]
		}
		return ""
	default:
		return ""
	}
}
