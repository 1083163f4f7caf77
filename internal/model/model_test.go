package model

import (
	"testing"
	"time"
)

func TestCanTransition_StateMachine(t *testing.T) {
	cases := []struct {
		from, to BookingStatus
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		b := Booking{Status: tc.from}
		if got := b.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestSlotKey_StringRoundTrip(t *testing.T) {
	key := SlotKey{
		Location:        "harley-street",
		StartsAt:        time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC),
		ServiceCategory: "massage",
	}
	parsed, err := ParseSlotKey(key.String())
	if err != nil {
		t.Fatalf("ParseSlotKey: %v", err)
	}
	if parsed != key {
		t.Fatalf("round trip changed key: %+v != %+v", parsed, key)
	}
}

func TestParseSlotKey_RejectsMalformedInput(t *testing.T) {
	for _, s := range []string{"", "just-a-location", "a|not-a-time|b", "|2025-03-03T09:30:00Z|"} {
		if _, err := ParseSlotKey(s); err == nil {
			t.Fatalf("ParseSlotKey(%q) accepted malformed input", s)
		}
	}
}

func TestParseMinuteOfDay(t *testing.T) {
	if m, err := ParseMinuteOfDay("09:30"); err != nil || m != 570 {
		t.Fatalf("ParseMinuteOfDay(09:30) = %d, %v", m, err)
	}
	for _, s := range []string{"", "9", "25:00", "09:61", "ab:cd"} {
		if _, err := ParseMinuteOfDay(s); err == nil {
			t.Fatalf("ParseMinuteOfDay(%q) accepted malformed input", s)
		}
	}
}

func TestTemplateValidate(t *testing.T) {
	valid := AvailabilityTemplate{
		Location:        "harley-street",
		ServiceCategory: "massage",
		DayOfWeek:       1,
		StartTime:       "09:00",
		EndTime:         "17:00",
		SlotDuration:    30,
		Capacity:        1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	broken := []func(*AvailabilityTemplate){
		func(t *AvailabilityTemplate) { t.Location = "" },
		func(t *AvailabilityTemplate) { t.DayOfWeek = 7 },
		func(t *AvailabilityTemplate) { t.SlotDuration = 0 },
		func(t *AvailabilityTemplate) { t.Capacity = 0 },
		func(t *AvailabilityTemplate) { t.EndTime = "09:00" },
		func(t *AvailabilityTemplate) { t.StartTime = "bogus" },
	}
	for i, mutate := range broken {
		tpl := valid
		mutate(&tpl)
		if err := tpl.Validate(); err == nil {
			t.Fatalf("case %d: invalid template accepted: %+v", i, tpl)
		}
	}
}

func TestInQuietWindow(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2025, 3, 3, h, m, 0, 0, time.UTC) }
	window := func(start, end int) Device {
		return Device{QuietStartMin: &start, QuietEndMin: &end}
	}

	normal := window(13*60, 15*60)
	if !normal.InQuietWindow(at(14, 0)) {
		t.Fatalf("14:00 not inside 13:00-15:00")
	}
	if normal.InQuietWindow(at(15, 0)) {
		t.Fatalf("window end is exclusive")
	}

	wrap := window(22*60, 6*60)
	if !wrap.InQuietWindow(at(23, 0)) || !wrap.InQuietWindow(at(5, 59)) {
		t.Fatalf("wrapping window missed its own hours")
	}
	if wrap.InQuietWindow(at(12, 0)) {
		t.Fatalf("midday inside a 22:00-06:00 window")
	}

	degenerate := window(9*60, 9*60)
	if degenerate.InQuietWindow(at(9, 0)) {
		t.Fatalf("zero-length window suppressed")
	}

	none := Device{}
	if none.InQuietWindow(at(3, 0)) {
		t.Fatalf("device without a window is quiet")
	}
}
