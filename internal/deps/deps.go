// Package deps verifies the external tools pipeline steps shell out to
// before a run starts, so a missing binary surfaces as one clear
// configuration error instead of a per-item failure storm.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"scribe/internal/config"
	"scribe/internal/steps"
)

// Requirement defines an external tool a pipeline step shells out to.
type Requirement struct {
	Step        string
	Command     string
	Description string
}

// Status reports the availability of one required tool.
type Status struct {
	Step        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// ForSteps builds the tool requirements for the steps enabled in this run.
// Steps without an external tool (render) contribute nothing.
func ForSteps(cfg *config.Config, enabled []string) []Requirement {
	var reqs []Requirement
	for _, step := range enabled {
		switch step {
		case steps.ExtractFrames:
			reqs = append(reqs, Requirement{
				Step:        step,
				Command:     cfg.Extract.Command,
				Description: "video frame extraction tool",
			})
		case steps.Convert:
			reqs = append(reqs, Requirement{
				Step:        step,
				Command:     cfg.Convert.Command,
				Description: "image conversion tool",
			})
		case steps.Describe:
			reqs = append(reqs, Requirement{
				Step:        step,
				Command:     cfg.Describe.Command,
				Description: "description provider adapter",
			})
		}
	}
	return reqs
}

// Check evaluates the provided requirements against PATH.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Step:        req.Step,
			Command:     cmd,
			Description: req.Description,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// FirstMissing returns the first unavailable status, if any.
func FirstMissing(statuses []Status) (Status, bool) {
	for _, status := range statuses {
		if !status.Available {
			return status, true
		}
	}
	return Status{}, false
}
