package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseTripStatus(t *testing.T) {
	cases := []struct {
		in   string
		want TripStatus
	}{
		{"searching", TripStatusSearching},
		{"driver_assigned", TripStatusDriverAssigned},
		{"accepted", TripStatusAccepted},
		{"active", TripStatusActive},
		{"completed", TripStatusCompleted},
		{"cancelled", TripStatusCancelled},
		{"driver not found", TripStatusDriverNotFound},
		{"driver_not_found", TripStatusDriverNotFound},
		{" Searching ", TripStatusSearching},
	}

	for _, tc := range cases {
		got, err := ParseTripStatus(tc.in)
		if err != nil {
			t.Fatalf("ParseTripStatus(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseTripStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	_, err := ParseTripStatus("warp")
	var unknown *ErrUnknownStatus
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestStatusUnmarshalStringAndObject(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`"searching"`), &s); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if s.Value != TripStatusSearching || s.Label == "" {
		t.Errorf("string form decoded to %+v", s)
	}

	if err := json.Unmarshal([]byte(`{"value":"driver_assigned","label":"Your driver is coming"}`), &s); err != nil {
		t.Fatalf("object form: %v", err)
	}
	if s.Value != TripStatusDriverAssigned || s.Label != "Your driver is coming" {
		t.Errorf("object form decoded to %+v", s)
	}

	if err := json.Unmarshal([]byte(`{"value":"nope"}`), &s); err == nil {
		t.Error("expected error for unknown status value")
	}
}

func TestStatusTerminalAndRank(t *testing.T) {
	terminal := []TripStatus{TripStatusCompleted, TripStatusCancelled, TripStatusDriverNotFound}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []TripStatus{TripStatusSearching, TripStatusDriverAssigned, TripStatusAccepted, TripStatusActive} {
		if s.IsTerminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}

	if TripStatusDriverAssigned.Rank() != TripStatusAccepted.Rank() {
		t.Error("driver_assigned and accepted must share a rank")
	}
	if !(TripStatusSearching.Rank() < TripStatusActive.Rank() && TripStatusActive.Rank() < TripStatusCompleted.Rank()) {
		t.Error("ranks must increase along the lifecycle")
	}
}

func TestTripMergeKeepsEarlierFields(t *testing.T) {
	held := &Trip{
		ID:               "T1",
		Status:           NewStatus(TripStatusSearching),
		PickupAddress:    "1 Main St",
		Fare:             &Fare{Amount: 12.5, Currency: "USD"},
		VerificationCode: "4821",
	}

	held.Merge(&Trip{
		ID:               "T1",
		Status:           NewStatus(TripStatusDriverAssigned),
		Driver:           &Driver{ID: "D1", Name: "Dana"},
		VerificationCode: "9999",
	})

	if held.Status.Value != TripStatusDriverAssigned {
		t.Errorf("status not updated: %+v", held.Status)
	}
	if held.Fare == nil || held.Fare.Amount != 12.5 {
		t.Error("partial update erased fare")
	}
	if held.PickupAddress != "1 Main St" {
		t.Error("partial update erased pickup address")
	}
	if held.VerificationCode != "4821" {
		t.Error("verification code must be immutable once assigned")
	}
	if held.Driver == nil || held.Driver.Name != "Dana" {
		t.Error("driver not adopted")
	}
}
