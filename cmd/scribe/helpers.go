package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"scribe/internal/runstate"
)

// Exit codes distinguish partial success from hard failure so shell callers
// can react without parsing output.
const (
	exitGeneric        = 1
	exitItemFailures   = 2
	exitAborted        = 3
	exitLockContention = 4
	exitUnrecoverable  = 5
)

// errItemFailures marks a run that completed but left items terminally failed.
var errItemFailures = errors.New("completed with item failures")

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, runstate.ErrUnrecoverable):
		return exitUnrecoverable
	case errors.Is(err, runstate.ErrLockContention):
		return exitLockContention
	case errors.Is(err, runstate.ErrRunAborted):
		return exitAborted
	case errors.Is(err, errItemFailures):
		return exitItemFailures
	default:
		return exitGeneric
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatDuration trims sub-second noise from durations longer than a minute.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d >= time.Minute {
		d = d.Round(time.Second)
	} else {
		d = d.Round(time.Millisecond)
	}
	return d.String()
}

func formatCount(n int) string {
	return fmt.Sprintf("%d", n)
}
