package types_test

import (
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]types.TimeOfDay{
		"00:00":    0,
		"06:00":    6 * 3600,
		"22:00:00": 22 * 3600,
		"23:59:59": 86399,
		" 08:30 ":  8*3600 + 30*60,
	}
	for in, want := range cases {
		got, err := types.ParseTimeOfDay(in)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseTimeOfDay_Rejects(t *testing.T) {
	for _, in := range []string{"", "7", "24:00", "12:60", "aa:bb", "1:2:3:4"} {
		if _, err := types.ParseTimeOfDay(in); err == nil {
			t.Errorf("ParseTimeOfDay(%q): expected error", in)
		}
	}
}

func TestTimeOfDay_String(t *testing.T) {
	if s := types.TimeOfDay(22*3600 + 5*60 + 7).String(); s != "22:05:07" {
		t.Errorf("got %q", s)
	}
}

func TestTimeOfDayOf_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC).In(loc)
	if got := types.TimeOfDayOf(ts); got != 22*3600 {
		t.Errorf("expected 22:00 local, got %s", got)
	}
}

func TestUser_DisplayName(t *testing.T) {
	u := types.User{FirstName: " Ana ", LastName: "Pérez"}
	if got := u.DisplayName(); got != "Ana Pérez" {
		t.Errorf("got %q", got)
	}
	if got := (types.User{FirstName: "Solo"}).DisplayName(); got != "Solo" {
		t.Errorf("got %q", got)
	}
}
