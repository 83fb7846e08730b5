package events

import "testing"

func TestRecorderAssignsSequence(t *testing.T) {
	recorder := NewRecorder(10)
	recorder.Emit(&Event{Type: "a", Attributes: map[string]string{"k": "v"}})
	recorder.Emit(&Event{Type: "b"})

	got := recorder.Events()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Sequence != 0 || got[1].Sequence != 1 {
		t.Fatalf("sequences = %d, %d", got[0].Sequence, got[1].Sequence)
	}
	if got[0].Type != "a" || got[1].Type != "b" {
		t.Fatalf("order not preserved")
	}
}

func TestRecorderBoundsHistory(t *testing.T) {
	recorder := NewRecorder(2)
	for _, typ := range []string{"a", "b", "c"} {
		recorder.Emit(&Event{Type: typ})
	}
	got := recorder.Events()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != "b" || got[1].Type != "c" {
		t.Fatalf("oldest event not evicted")
	}
	// Sequence numbers keep climbing across eviction.
	if got[1].Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", got[1].Sequence)
	}
}

func TestRecorderClonesEvents(t *testing.T) {
	recorder := NewRecorder(10)
	attrs := map[string]string{"k": "v"}
	recorder.Emit(&Event{Type: "a", Attributes: attrs})
	attrs["k"] = "mutated"

	got := recorder.Events()
	if got[0].Attributes["k"] != "v" {
		t.Fatalf("recorder aliases caller attribute map")
	}
	got[0].Attributes["k"] = "mutated again"
	if recorder.Events()[0].Attributes["k"] != "v" {
		t.Fatalf("snapshot aliases recorder state")
	}
}
