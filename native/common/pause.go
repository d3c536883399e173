package common

import "errors"

var ErrProgramPaused = errors.New("market: program paused")

// PauseView exposes the global pause switch consulted before every mutating
// operation.
type PauseView interface {
	IsPaused() bool
}

func Guard(p PauseView) error {
	if p == nil {
		return nil
	}
	if p.IsPaused() {
		return ErrProgramPaused
	}
	return nil
}
