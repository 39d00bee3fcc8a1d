package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestJobStatus_IsTerminal(t *testing.T) {
	cases := map[JobStatus]bool{
		StatusPending:        false,
		StatusCompleted:      true,
		StatusFailed:         true,
		JobStatus("running"): false,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
	if JobStatus("running").IsValid() {
		t.Error("running must not be a valid persisted status")
	}
}

func TestTerminalUpdate_Validate(t *testing.T) {
	valid := []TerminalUpdate{
		Completed("results/abc/summary.txt"),
		Failed("boom"),
	}
	for _, u := range valid {
		if err := u.Validate(); err != nil {
			t.Errorf("expected %+v to be valid, got %v", u, err)
		}
	}

	invalid := []TerminalUpdate{
		{Status: StatusPending},
		{Status: StatusCompleted},
		{Status: StatusFailed},
		{Status: StatusCompleted, ResultReference: "k", ErrorMessage: "e"},
		{Status: StatusFailed, ResultReference: "k", ErrorMessage: "e"},
	}
	for _, u := range invalid {
		if err := u.Validate(); !errors.Is(err, ErrInvalidTerminalUpdate) {
			t.Errorf("expected ErrInvalidTerminalUpdate for %+v, got %v", u, err)
		}
	}
}

func TestValidationErrorsShareParent(t *testing.T) {
	for _, err := range []error{ErrInputTooLarge, ErrEmptyInput, ErrMalformedPayload, ErrUnknownTaskType, ErrMissingOwner} {
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%v should wrap ErrValidation", err)
		}
	}
	if errors.Is(ErrJobNotFound, ErrValidation) {
		t.Error("ErrJobNotFound must not be a validation error")
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}

	base := errors.New("bad input")
	err := fmt.Errorf("run task: %w", Permanent(base))
	if !IsPermanent(err) {
		t.Error("expected wrapped permanent error to be detected")
	}
	if !errors.Is(err, base) {
		t.Error("permanent error should unwrap to its cause")
	}
	if IsPermanent(base) {
		t.Error("untagged error must be transient")
	}
}
