package indexer

import "fmt"

// ScanWindow is an inclusive block range scanned as one unit.
type ScanWindow struct {
	ID   int
	From uint64
	To   uint64
}

// NextWindow returns the window starting at from. Window ends sit on the grid
// origin + k*windowSize (k >= 1), so a narrowed window realigns on the next one.
func NextWindow(id int, origin, from, end, windowSize uint64) ScanWindow {
	if from < origin {
		origin = from
	}
	offset := from - origin
	k := offset / windowSize
	if k == 0 || offset%windowSize != 0 {
		k++
	}
	to := origin + k*windowSize
	if to > end || to < from {
		to = end
	}
	return ScanWindow{ID: id, From: from, To: to}
}

// SplitRange partitions [from, to] into consecutive windows of at most windowSize+1 blocks.
func SplitRange(from, to, windowSize uint64) ([]ScanWindow, error) {
	if windowSize == 0 {
		return nil, fmt.Errorf("window size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	windows := make([]ScanWindow, 0)
	for start, id := from, 0; ; id++ {
		window := NextWindow(id, from, start, to, windowSize)
		windows = append(windows, window)
		if window.To == to {
			break
		}
		start = window.To + 1
	}

	return windows, nil
}
