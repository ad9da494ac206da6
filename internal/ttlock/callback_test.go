package ttlock_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/ttlock"
)

var received = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestEventFromCallback_RecordsString(t *testing.T) {
	fields := map[string]any{
		"lockId":  "7001",
		"lockMac": "AA:BB",
		"records": `[{"lockId":7001,"recordType":8,"fingerprintNumber":12345,"senderUsername":"Ana Pérez","electricQuantity":83}]`,
	}
	ev, err := ttlock.EventFromCallback(fields, received)
	if err != nil {
		t.Fatalf("EventFromCallback: %v", err)
	}
	if ev.LockID != "7001" || ev.FingerprintID != "12345" || ev.CredentialToken != "Ana Pérez" || ev.LockMAC != "AA:BB" {
		t.Errorf("event = %+v", ev)
	}
	if ev.EventType != types.CredentialFingerprint || ev.Source != types.SourceWebhook {
		t.Errorf("type=%s source=%s", ev.EventType, ev.Source)
	}
	if ev.BatteryPct == nil || *ev.BatteryPct != 83 {
		t.Errorf("battery = %v", ev.BatteryPct)
	}
	if !ev.Timestamp.Equal(received) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestEventFromCallback_FlatJSONNumbers(t *testing.T) {
	ev, err := ttlock.EventFromCallback(decode(t, `{"lockId": 42, "cardNumber": 99, "lockDate": 1700000000000}`), received)
	if err != nil {
		t.Fatalf("EventFromCallback: %v", err)
	}
	if ev.LockID != "42" || ev.CardNumber != "99" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestEventFromCallback_RecordsArrayAndAliases(t *testing.T) {
	ev, err := ttlock.EventFromCallback(decode(t, `{"records":[{"doorId":"9","cardId":"C-1","cardName":"Luis Gómez","recordType":7}]}`), received)
	if err != nil {
		t.Fatalf("EventFromCallback: %v", err)
	}
	if ev.LockID != "9" || ev.CardNumber != "C-1" || ev.CredentialToken != "Luis Gómez" || ev.EventType != types.CredentialCard {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventFromCallback_KeyboardPwdFillsCredential(t *testing.T) {
	ev, err := ttlock.EventFromCallback(map[string]any{
		"lockId":      "1",
		"recordType":  "7",
		"keyboardPwd": "55",
	}, received)
	if err != nil {
		t.Fatalf("EventFromCallback: %v", err)
	}
	if ev.CardNumber != "55" {
		t.Errorf("card = %q", ev.CardNumber)
	}
}

func TestEventFromCallback_Malformed(t *testing.T) {
	if _, err := ttlock.EventFromCallback(map[string]any{"username": "x"}, received); !errors.Is(err, ttlock.ErrMissingLockID) {
		t.Errorf("expected ErrMissingLockID, got %v", err)
	}
	if _, err := ttlock.EventFromCallback(map[string]any{"records": "{oops"}, received); !errors.Is(err, ttlock.ErrMissingLockID) {
		t.Errorf("bad records without lockId: expected ErrMissingLockID, got %v", err)
	}
}

func TestEventFromCallback_BadRecordsKeepsTopLevelFields(t *testing.T) {
	ev, err := ttlock.EventFromCallback(map[string]any{
		"lockId":   "L1",
		"username": "Ana Pérez",
		"records":  "{oops",
	}, received)
	if !errors.Is(err, ttlock.ErrBadRecords) {
		t.Fatalf("expected ErrBadRecords, got %v", err)
	}
	if errors.Is(err, ttlock.ErrMissingLockID) {
		t.Fatal("lockId was present")
	}
	if ev.LockID != "L1" || ev.CredentialToken != "Ana Pérez" || ev.Source != types.SourceWebhook {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventFromCallback_CredentialsVerbatim(t *testing.T) {
	ev, err := ttlock.EventFromCallback(map[string]any{
		"lockId":            " 7001 ",
		"fingerprintNumber": " 12345",
		"electricQuantity":  " 80 ",
	}, received)
	if err != nil {
		t.Fatalf("EventFromCallback: %v", err)
	}
	if ev.LockID != "7001" {
		t.Errorf("lock = %q", ev.LockID)
	}
	if ev.FingerprintID != " 12345" {
		t.Errorf("fingerprint = %q, want it untouched", ev.FingerprintID)
	}
	if ev.BatteryPct == nil || *ev.BatteryPct != 80 {
		t.Errorf("battery = %v", ev.BatteryPct)
	}
}

func TestEventFromCallback_NoTokens(t *testing.T) {
	ev, err := ttlock.EventFromCallback(map[string]any{"lockId": "1"}, received)
	if err != nil {
		t.Fatalf("EventFromCallback: %v", err)
	}
	if ev.HasIdentityTokens() {
		t.Errorf("expected no identity tokens, got %+v", ev)
	}
}
