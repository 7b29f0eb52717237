package scoring

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/sim"
)

// History appends one row per evaluation to a calibration history CSV:
// iteration, timestamp, objective, then the 18 parameters in canonical
// order. External analysis tooling consumes this file while a batch is
// still running, so every append is flushed before returning.
type History struct {
	fs   fsutil.FileSystem
	path string
	mu   sync.Mutex
}

// NewHistory opens (or creates) the history file at path. A new file
// gets the header row; an existing file is appended to as-is.
func NewHistory(fsys fsutil.FileSystem, path string) (*History, error) {
	h := &History{fs: fsys, path: path}
	if fsys.Exists(path) {
		return h, nil
	}

	w, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create history file: %w", err)
	}
	defer w.Close()

	cw := csv.NewWriter(w)
	header := append([]string{"iteration", "timestamp", "objective"}, sim.ParamNames()...)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write history header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush history header: %w", err)
	}
	return h, nil
}

// Append records one evaluation. Timestamps are RFC 3339.
func (h *History) Append(iteration int, at time.Time, objective float64, params sim.Parameters) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, err := h.fs.Append(h.path)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer w.Close()

	row := make([]string, 0, 3+sim.ParamCount)
	row = append(row,
		strconv.Itoa(iteration),
		at.Format(time.RFC3339),
		strconv.FormatFloat(objective, 'g', -1, 64),
	)
	for _, v := range params.ToSlice() {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("failed to write history row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush history row: %w", err)
	}
	return nil
}

// Path returns the history file location.
func (h *History) Path() string { return h.path }
