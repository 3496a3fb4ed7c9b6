//go:build !linux

package render

// peakChildRSS is only measurable on Linux deployments; elsewhere the worker
// reports zero and the gauge stays unset.
func peakChildRSS() int64 {
	return 0
}
