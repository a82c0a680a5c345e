package internal

import (
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

const (
	// HoldIoUThreshold is the overlap a detection needs with the last tracked
	// box to keep an existing lock.
	HoldIoUThreshold = 0.3
	// AcquireIoUThreshold is the overlap a detection needs with the targeter
	// box to start a new lock.
	AcquireIoUThreshold = 0.1
)

// Match is the result of an association scan.
type Match struct {
	Box   utils.BoundingBox
	Index int
	IoU   float64
}

// firstOverThreshold scans detections in order and stops at the first one whose
// IoU against ref is strictly greater than threshold.
func firstOverThreshold(detections []utils.BoundingBox, ref utils.BoundingBox, threshold float64) (Match, bool) {
	for i, det := range detections {
		if iou := utils.GetIoU(det, ref); iou > threshold {
			return Match{Box: det, Index: i, IoU: iou}, true
		}
	}
	return Match{Index: -1}, false
}

// FindReacquisition re-finds an already locked target. It returns the first
// detection, in detector order, that overlaps the previous tracked box by more
// than threshold; it does not look for the best overlap.
func FindReacquisition(detections []utils.BoundingBox, reference utils.BoundingBox, threshold float64) (Match, bool) {
	return firstOverThreshold(detections, reference, threshold)
}

// FindInitialLock picks the detection a new lock binds to from the operator's
// targeter box. Same first-match rule as FindReacquisition.
func FindInitialLock(detections []utils.BoundingBox, targeter utils.BoundingBox, threshold float64) (Match, bool) {
	return firstOverThreshold(detections, targeter, threshold)
}
