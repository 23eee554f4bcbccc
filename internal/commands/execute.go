package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Capture func(CaptureArgs) (Result, error)
	Done    func(DoneArgs) (Result, error)
	Sync    func() (Result, error)
	Offline func(OfflineArgs) (Result, error)
	Find    func(FindArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeCapture:
		if handlers.Capture == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "capture handler not configured"}
		}
		return handlers.Capture(*cmd.Capture)
	case TypeDone:
		if handlers.Done == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "done handler not configured"}
		}
		return handlers.Done(*cmd.Done)
	case TypeSync:
		if handlers.Sync == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "sync handler not configured"}
		}
		return handlers.Sync()
	case TypeOffline:
		if handlers.Offline == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "offline handler not configured"}
		}
		return handlers.Offline(*cmd.Offline)
	case TypeFind:
		if handlers.Find == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "find handler not configured"}
		}
		return handlers.Find(*cmd.Find)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
