//go:build !linux && !darwin

package handler

// getCPUUsage is not implemented on this platform; the service ships in Linux containers.
func getCPUUsage() float64 {
	return 0
}
