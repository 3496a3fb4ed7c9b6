//go:build linux

package render

import "syscall"

// peakChildRSS reports the peak resident set size of reaped child processes
// (the browser) in bytes. Linux reports ru_maxrss in kilobytes.
func peakChildRSS() int64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_CHILDREN, &ru); err != nil {
		return 0
	}
	return ru.Maxrss * 1024
}
