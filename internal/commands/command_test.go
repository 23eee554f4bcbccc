package commands

import (
	"errors"
	"testing"
)

func TestParseCapture(t *testing.T) {
	cmd, err := Parse("/capture call @maria tomorrow at 9am")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Type != TypeCapture {
		t.Fatalf("type got %q", cmd.Type)
	}
	if cmd.Capture == nil || cmd.Capture.Text != "call @maria tomorrow at 9am" {
		t.Fatalf("capture args got %+v", cmd.Capture)
	}
}

func TestParseDoneRequiresSingleID(t *testing.T) {
	if _, err := Parse("done"); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := Parse("done a b"); err == nil {
		t.Fatal("expected error for extra args")
	}
	cmd, err := Parse("done task-1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Done.ID != "task-1" {
		t.Fatalf("id got %q", cmd.Done.ID)
	}
}

func TestParseOffline(t *testing.T) {
	on, err := Parse("offline on")
	if err != nil {
		t.Fatalf("parse on: %v", err)
	}
	if !on.Offline.On {
		t.Fatal("expected offline on")
	}
	off, err := Parse("offline off")
	if err != nil {
		t.Fatalf("parse off: %v", err)
	}
	if off.Offline.On {
		t.Fatal("expected offline off")
	}
	if _, err := Parse("offline maybe"); err == nil {
		t.Fatal("expected error for bad toggle")
	}
}

func TestParseSyncRejectsArgs(t *testing.T) {
	if _, err := Parse("sync now"); err == nil {
		t.Fatal("expected error for sync with args")
	}
	cmd, err := Parse("sync")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Type != TypeSync {
		t.Fatalf("type got %q", cmd.Type)
	}
}

func TestParseErrors(t *testing.T) {
	var cmdErr *CommandError

	_, err := Parse("   ")
	if !errors.As(err, &cmdErr) || cmdErr.Code != ErrCodeEmptyInput {
		t.Fatalf("empty input error got %v", err)
	}

	_, err = Parse("teleport home")
	if !errors.As(err, &cmdErr) || cmdErr.Code != ErrCodeUnknownCommand {
		t.Fatalf("unknown command error got %v", err)
	}
}

func TestExecuteDispatch(t *testing.T) {
	cmd, err := Parse("find coffee")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, err := Execute(cmd, Handlers{
		Find: func(a FindArgs) (Result, error) {
			return Result{Message: "found: " + a.Query}, nil
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Message != "found: coffee" {
		t.Fatalf("message got %q", res.Message)
	}
}

func TestExecuteMissingHandler(t *testing.T) {
	cmd, err := Parse("sync")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var cmdErr *CommandError
	if _, err := Execute(cmd, Handlers{}); !errors.As(err, &cmdErr) || cmdErr.Code != ErrCodeHandlerMissing {
		t.Fatalf("missing handler error got %v", err)
	}
}
