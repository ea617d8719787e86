package battle

import "studybattle-client/internal/domain"

// History is the append-only round log. One entry is appended per
// round_start; the most recent entry is amended by the next round_result.
// It is not safe for concurrent use on its own; the owning session's lock
// covers it.
type History struct {
	records []domain.RoundRecord
	frozen  bool
}

// Append opens a new record for a freshly started round. No-op once frozen.
func (h *History) Append(q domain.Question) {
	if h.frozen {
		return
	}
	h.records = append(h.records, domain.RoundRecord{Question: q})
}

// AmendLast resolves the most recently appended record. It reports whether
// an amendment happened: a result arriving with no open record (duplicate or
// late delivery) leaves the history untouched.
func (h *History) AmendLast(res domain.RoundResult) bool {
	if h.frozen || len(h.records) == 0 {
		return false
	}
	last := &h.records[len(h.records)-1]
	if last.Resolved {
		return false
	}
	last.Resolved = true
	last.Winner = res.Winner
	last.Timeout = res.Timeout
	last.Skipped = res.Skipped
	last.Solution = res.Solution
	last.CorrectAnswer = res.CorrectAnswer
	last.Citations = res.Citations
	return true
}

// Freeze makes the history read-only. Called on match_end.
func (h *History) Freeze() {
	h.frozen = true
}

// Len returns the number of rounds recorded.
func (h *History) Len() int {
	return len(h.records)
}

// Snapshot returns a copy of the records safe to hand to renderers.
func (h *History) Snapshot() []domain.RoundRecord {
	out := make([]domain.RoundRecord, len(h.records))
	copy(out, h.records)
	return out
}
