package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// Requirement names a tool devmirror launches: the discovery binary or the
// mirroring binary. Command may be a bare name resolved through PATH or an
// absolute path from the config file.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the resolved state of one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Path is the resolved executable, empty when unavailable.
	Path   string
	Detail string
}

// CheckBinaries resolves each requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, resolve(req))
	}
	return results
}

// Missing returns the required tools that could not be resolved. Optional
// tools are never reported.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

func resolve(req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(cmd)
	switch {
	case err == nil:
		status.Available = true
		status.Path = path
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
	default:
		// LookPath on an explicit path reports permission problems as-is.
		status.Detail = fmt.Sprintf("binary %q not executable", cmd)
	}
	return status
}
