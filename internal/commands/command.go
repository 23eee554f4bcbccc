package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeCapture Type = "capture"
	TypeDone    Type = "done"
	TypeSync    Type = "sync"
	TypeOffline Type = "offline"
	TypeFind    Type = "find"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type CaptureArgs struct {
	Text string
}

type DoneArgs struct {
	ID string
}

type OfflineArgs struct {
	On bool
}

type FindArgs struct {
	Query string
}

type Command struct {
	Type    Type
	Raw     string
	Capture *CaptureArgs
	Done    *DoneArgs
	Offline *OfflineArgs
	Find    *FindArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeCapture:
		return parseCapture(input, args)
	case TypeDone:
		return parseDone(input, args)
	case TypeSync:
		if len(args) != 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "sync takes no arguments"}
		}
		return Command{Type: TypeSync, Raw: input}, nil
	case TypeOffline:
		return parseOffline(input, args)
	case TypeFind:
		return parseFind(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseCapture(raw string, args []string) (Command, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "capture requires text"}
	}
	return Command{Type: TypeCapture, Raw: raw, Capture: &CaptureArgs{Text: text}}, nil
}

func parseDone(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "done requires exactly one task id"}
	}
	return Command{Type: TypeDone, Raw: raw, Done: &DoneArgs{ID: args[0]}}, nil
}

func parseOffline(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "offline requires on or off"}
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return Command{Type: TypeOffline, Raw: raw, Offline: &OfflineArgs{On: true}}, nil
	case "off":
		return Command{Type: TypeOffline, Raw: raw, Offline: &OfflineArgs{On: false}}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "offline requires on or off"}
	}
}

func parseFind(raw string, args []string) (Command, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "find requires a query"}
	}
	return Command{Type: TypeFind, Raw: raw, Find: &FindArgs{Query: query}}, nil
}
