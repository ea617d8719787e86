package battle

import (
	"testing"

	"studybattle-client/internal/domain"
)

func TestHistoryAppendAndAmend(t *testing.T) {
	var h History

	h.Append(domain.Question{ID: "q1", Text: "first"})
	h.Append(domain.Question{ID: "q2", Text: "second"})

	if !h.AmendLast(domain.RoundResult{Solution: "s", CorrectAnswer: "a"}) {
		t.Fatalf("expected amend to apply")
	}

	records := h.Snapshot()
	if records[0].Resolved {
		t.Fatalf("amend must only touch the most recent record")
	}
	if !records[1].Resolved || records[1].Question.Text != "second" {
		t.Fatalf("expected last record resolved with question retained, got %+v", records[1])
	}
}

func TestHistoryDuplicateResultIgnored(t *testing.T) {
	var h History

	if h.AmendLast(domain.RoundResult{Solution: "s"}) {
		t.Fatalf("amend with no records must be a no-op")
	}

	h.Append(domain.Question{ID: "q1"})
	h.AmendLast(domain.RoundResult{Solution: "first"})
	if h.AmendLast(domain.RoundResult{Solution: "second"}) {
		t.Fatalf("duplicate result must not overwrite the record")
	}
	if got := h.Snapshot()[0].Solution; got != "first" {
		t.Fatalf("expected original resolution kept, got %q", got)
	}
}

func TestHistoryFreeze(t *testing.T) {
	var h History
	h.Append(domain.Question{ID: "q1"})
	h.Freeze()

	h.Append(domain.Question{ID: "q2"})
	if h.AmendLast(domain.RoundResult{Solution: "late"}) {
		t.Fatalf("frozen history must reject amendments")
	}
	if h.Len() != 1 {
		t.Fatalf("frozen history must reject appends, got %d records", h.Len())
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	var h History
	h.Append(domain.Question{ID: "q1", Text: "original"})

	snap := h.Snapshot()
	snap[0].Question.Text = "mutated"

	if h.Snapshot()[0].Question.Text != "original" {
		t.Fatalf("snapshot mutation leaked into the history")
	}
}
