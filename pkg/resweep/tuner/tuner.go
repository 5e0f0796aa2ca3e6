// Package tuner sizes the compute resources requested for each solver run
// from what the machine actually has.
package tuner

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the free RAM in bytes. It may be an estimate.
	AvailableRAM int64
}

// Request holds the user's resource settings. Zero values mean "choose for me".
type Request struct {
	Cores        int
	Tasks        int
	AutoSettings bool
}

const (
	// maxCores caps the cores requested for one run.
	maxCores = 256

	// bytesPerMode is a rough lower bound on solver memory per requested mode.
	bytesPerMode = 512 << 20
)

// Calculate returns the compute resources for one run. Without an explicit
// core count every detected core is used; tasks default to one and never
// exceed the core count.
func Calculate(res SystemResources, req Request) solver.ComputeResources {
	cores := req.Cores
	if cores <= 0 {
		cores = res.CPUCores
	}
	cores = max(cores, 1)
	cores = min(cores, maxCores)

	tasks := req.Tasks
	if tasks <= 0 {
		tasks = 1
	}
	tasks = min(tasks, cores)

	return solver.ComputeResources{
		Cores:        cores,
		Tasks:        tasks,
		AutoSettings: req.AutoSettings,
	}
}

// Warnings describes requests the machine is unlikely to satisfy.
func Warnings(res SystemResources, cr solver.ComputeResources, modes int) []string {
	var out []string
	if res.CPUCores > 0 && cr.Cores > res.CPUCores {
		out = append(out, fmt.Sprintf("requested %d cores but only %d detected", cr.Cores, res.CPUCores))
	}
	if need := int64(modes) * bytesPerMode; res.AvailableRAM > 0 && need > res.AvailableRAM {
		out = append(out, fmt.Sprintf("%d modes may need about %s but only %s is free",
			modes, humanize.IBytes(uint64(need)), humanize.IBytes(uint64(res.AvailableRAM))))
	}
	return out
}
