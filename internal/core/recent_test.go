package core

import (
	"fmt"
	"testing"
)

func TestAlertRing_ChronologicalOrder(t *testing.T) {
	r := NewAlertRing(10)
	for i := 0; i < 3; i++ {
		r.Add(NewUnifiedAlert(SourceNIDSSignature, SeverityLow, fmt.Sprintf("alert %d", i), "", nil))
	}

	got := r.Recent(3)
	if len(got) != 3 {
		t.Fatalf("got %d alerts, want 3", len(got))
	}
	for i, a := range got {
		if want := fmt.Sprintf("alert %d", i); a.Title != want {
			t.Errorf("position %d = %q, want %q", i, a.Title, want)
		}
	}
}

func TestAlertRing_WrapsAtCapacity(t *testing.T) {
	r := NewAlertRing(4)
	for i := 0; i < 10; i++ {
		r.Add(NewUnifiedAlert(SourceHIDSFile, SeverityLow, fmt.Sprintf("alert %d", i), "", nil))
	}

	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}

	got := r.Recent(4)
	want := []string{"alert 6", "alert 7", "alert 8", "alert 9"}
	for i, a := range got {
		if a.Title != want[i] {
			t.Errorf("position %d = %q, want %q", i, a.Title, want[i])
		}
	}
}

func TestAlertRing_RequestMoreThanHeld(t *testing.T) {
	r := NewAlertRing(10)
	r.Add(NewUnifiedAlert(SourceHIDSLog, SeverityInfo, "only one", "", nil))

	got := r.Recent(50)
	if len(got) != 1 {
		t.Fatalf("got %d alerts, want 1", len(got))
	}
	if got[0].Title != "only one" {
		t.Errorf("title = %q", got[0].Title)
	}
}

func TestAlertRing_Empty(t *testing.T) {
	r := NewAlertRing(10)
	if got := r.Recent(5); len(got) != 0 {
		t.Errorf("empty ring returned %d alerts", len(got))
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}
