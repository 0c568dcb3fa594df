// Package ballot holds the in-progress election definition being assembled
// by an admin, together with the per-step validation rules. It is pure data:
// no I/O, no clocks, no external calls.
package ballot

import (
	"encoding/json"
	"time"
)

// QuestionKind determines how many options a question needs.
const (
	// KindChoice is a pick-one question; it needs at least two options.
	KindChoice = "choice"
	// KindOpen accepts write-ins; a single option is enough.
	KindOpen = "open"
)

// Question is one ballot question with its ordered options.
type Question struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Kind         string   `json:"kind"`
	Options      []string `json:"options"`
	AllowWriteIn bool     `json:"allow_write_in"`
}

// Draft is the unpersisted election definition. It is mutated only through
// the workflow's setters while the admin is on steps 1-3.
type Draft struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	QuickBallot bool       `json:"quick_ballot"`
	Questions   []Question `json:"questions"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	EndAt       *time.Time `json:"end_at,omitempty"`
	SeatCount   int        `json:"seat_count"`
}

// Issue names a validation problem that blocks a forward step transition.
type Issue string

const (
	IssueNone                 Issue = ""
	IssueMissingTitle         Issue = "missing_title"
	IssueNoQuestions          Issue = "no_questions"
	IssueEmptyQuestionTitle   Issue = "empty_question_title"
	IssueTooFewOptions        Issue = "too_few_options"
	IssueMissingDates         Issue = "missing_dates"
	IssueEndNotAfterStart     Issue = "end_not_after_start"
	IssueSeatCountNotPositive Issue = "seat_count_not_positive"
)

// ValidateContentStep checks step 1: title and questions.
func (d *Draft) ValidateContentStep() Issue {
	if d.Title == "" {
		return IssueMissingTitle
	}
	if len(d.Questions) == 0 {
		return IssueNoQuestions
	}
	for _, q := range d.Questions {
		if q.Title == "" {
			return IssueEmptyQuestionTitle
		}
		min := 1
		if q.Kind == KindChoice {
			min = 2
		}
		if len(q.Options) < min {
			return IssueTooFewOptions
		}
	}
	return IssueNone
}

// ValidateDurationStep checks step 2: both dates present, end after start.
func (d *Draft) ValidateDurationStep() Issue {
	if d.StartAt == nil || d.EndAt == nil {
		return IssueMissingDates
	}
	if !d.EndAt.After(*d.StartAt) {
		return IssueEndNotAfterStart
	}
	return IssueNone
}

// ValidateParticipantsStep checks step 3: positive seat count.
func (d *Draft) ValidateParticipantsStep() Issue {
	if d.SeatCount <= 0 {
		return IssueSeatCountNotPositive
	}
	return IssueNone
}

// ValidateStep dispatches to the validator for the given editing step (1-3).
// Unknown steps validate as ok so navigation never panics on bad input; the
// workflow bounds steps before calling.
func (d *Draft) ValidateStep(step int) Issue {
	switch step {
	case 1:
		return d.ValidateContentStep()
	case 2:
		return d.ValidateDurationStep()
	case 3:
		return d.ValidateParticipantsStep()
	}
	return IssueNone
}

// Clone returns a deep copy, safe to hand out as a read-only snapshot.
func (d *Draft) Clone() Draft {
	out := *d
	if d.StartAt != nil {
		t := *d.StartAt
		out.StartAt = &t
	}
	if d.EndAt != nil {
		t := *d.EndAt
		out.EndAt = &t
	}
	out.Questions = make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		cq := q
		cq.Options = append([]string(nil), q.Options...)
		out.Questions[i] = cq
	}
	return out
}

// SnapshotJSON renders the draft in a stable wire form. It feeds the
// payment idempotency key, so two equal drafts must serialize identically.
func (d *Draft) SnapshotJSON() ([]byte, error) {
	return json.Marshal(d)
}

// Equal reports whether two drafts serialize to the same snapshot.
func (d *Draft) Equal(other *Draft) bool {
	a, err := d.SnapshotJSON()
	if err != nil {
		return false
	}
	b, err := other.SnapshotJSON()
	if err != nil {
		return false
	}
	return string(a) == string(b)
}
