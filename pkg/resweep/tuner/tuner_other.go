//go:build !linux && !darwin

package tuner

import "runtime"

const defaultTotalRAM = 8 << 30

// Detect returns the runtime core count and an assumed 8 GiB of memory.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}, nil
}
