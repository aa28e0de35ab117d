//go:build windows

package telemetry

import "time"

// processCPUTime has no portable stdlib source on Windows without
// cgo; it returns 0, which cpuFraction treats as "not observed" rather
// than failing the request (CPU utilization is documented as
// best-effort in spec.md §4.12).
func processCPUTime() time.Duration { return 0 }
