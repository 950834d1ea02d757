package sync

import (
	"github.com/schaermu/gamerules/internal/config"
	"github.com/schaermu/gamerules/internal/resolve"
)

// PullTarget is the outcome of materializing one target
type PullTarget struct {
	Target config.Target
	// Initial is true when the target folder did not exist before the run
	Initial bool
	// Written is the number of files written
	Written int
}

// PullResult summarizes a pull run
type PullResult struct {
	Targets []PullTarget
	// Changed is true when the work tree differs from HEAD after writing
	Changed bool
	// Message is the commit message, empty when nothing changed
	Message   string
	Committed bool
}

// PushTarget is the resolved work for one target
type PushTarget struct {
	Target config.Target
	Plan   *resolve.Plan
	// Ignored lists changed paths inside the target with no known shape
	Ignored []string
}

// PushResult summarizes a push run
type PushResult struct {
	Targets []PushTarget
	// Outside lists changed paths that belong to no target
	Outside []string
	// Updates is the number of remote update calls issued
	Updates int
}
