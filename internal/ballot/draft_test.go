package ballot

import (
	"testing"
	"time"
)

func validDraft() Draft {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	return Draft{
		Title: "Board Election 2026",
		Questions: []Question{
			{Title: "Chairperson", Kind: KindChoice, Options: []string{"Alice", "Bob"}},
		},
		StartAt:   &start,
		EndAt:     &end,
		SeatCount: 10,
	}
}

func TestValidateContentStep(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
		want   Issue
	}{
		{"valid", func(d *Draft) {}, IssueNone},
		{"missing title", func(d *Draft) { d.Title = "" }, IssueMissingTitle},
		{"no questions", func(d *Draft) { d.Questions = nil }, IssueNoQuestions},
		{"empty question title", func(d *Draft) { d.Questions[0].Title = "" }, IssueEmptyQuestionTitle},
		{"choice with one option", func(d *Draft) { d.Questions[0].Options = []string{"Alice"} }, IssueTooFewOptions},
		{"open with one option", func(d *Draft) {
			d.Questions[0].Kind = KindOpen
			d.Questions[0].Options = []string{"Other"}
		}, IssueNone},
		{"open with no options", func(d *Draft) {
			d.Questions[0].Kind = KindOpen
			d.Questions[0].Options = nil
		}, IssueTooFewOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			if got := d.ValidateContentStep(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateDurationStep(t *testing.T) {
	d := validDraft()
	if got := d.ValidateDurationStep(); got != IssueNone {
		t.Fatalf("valid draft: got %q", got)
	}

	d.EndAt = nil
	if got := d.ValidateDurationStep(); got != IssueMissingDates {
		t.Errorf("missing end: got %q, want %q", got, IssueMissingDates)
	}

	d = validDraft()
	*d.EndAt = *d.StartAt
	if got := d.ValidateDurationStep(); got != IssueEndNotAfterStart {
		t.Errorf("end == start: got %q, want %q", got, IssueEndNotAfterStart)
	}
}

func TestValidateParticipantsStep(t *testing.T) {
	d := validDraft()
	if got := d.ValidateParticipantsStep(); got != IssueNone {
		t.Fatalf("valid draft: got %q", got)
	}
	d.SeatCount = 0
	if got := d.ValidateParticipantsStep(); got != IssueSeatCountNotPositive {
		t.Errorf("zero seats: got %q, want %q", got, IssueSeatCountNotPositive)
	}
}

func TestValidateStepDispatch(t *testing.T) {
	d := Draft{}
	if got := d.ValidateStep(1); got != IssueMissingTitle {
		t.Errorf("step 1: got %q", got)
	}
	if got := d.ValidateStep(2); got != IssueMissingDates {
		t.Errorf("step 2: got %q", got)
	}
	if got := d.ValidateStep(3); got != IssueSeatCountNotPositive {
		t.Errorf("step 3: got %q", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := validDraft()
	c := d.Clone()

	c.Questions[0].Options[0] = "Mallory"
	c.Questions[0].Title = "Treasurer"
	*c.StartAt = c.StartAt.Add(time.Hour)

	if d.Questions[0].Options[0] != "Alice" {
		t.Error("clone shares question options with original")
	}
	if d.Questions[0].Title != "Chairperson" {
		t.Error("clone shares questions slice with original")
	}
	if !d.StartAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Error("clone shares start time with original")
	}
}

func TestEqual(t *testing.T) {
	a := validDraft()
	b := validDraft()
	if !a.Equal(&b) {
		t.Error("identical drafts compare unequal")
	}
	b.Title = "Different"
	if a.Equal(&b) {
		t.Error("different drafts compare equal")
	}
}

func TestSnapshotJSONStable(t *testing.T) {
	d := validDraft()
	first, err := d.SnapshotJSON()
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.SnapshotJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("snapshot is not deterministic for an unchanged draft")
	}
}
