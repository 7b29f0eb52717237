// Package trajectory loads recorded pedestrian tracks from capture
// CSV exports and indexes them by agent id. Tracks are immutable once
// loaded; the simulation core reads them for playback and waypoints
// but never writes them.
package trajectory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"
)

// Sample is one recorded observation of one pedestrian. X and Z span
// the ground plane; Y is the recorded vertical and is unused by the
// planar model.
type Sample struct {
	AgentID   int
	TimeIndex int
	X         float64
	Z         float64
	Y         float64
	Speed     float64
}

// Track is the time-ordered recording of one pedestrian. TimeIndex is
// strictly increasing along a track.
type Track []Sample

// First returns the earliest sample of the track.
func (t Track) First() Sample { return t[0] }

// Last returns the final sample of the track.
func (t Track) Last() Sample { return t[len(t)-1] }

// DataFormatError reports a malformed trajectory row. Loading aborts
// on the first malformed row: a capture export with bad rows should be
// fixed at the source, not partially loaded.
type DataFormatError struct {
	Row int // 1-based row number in the source
	Err error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("trajectory row %d: %v", e.Row, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// Store indexes recorded tracks by agent id.
type Store struct {
	tracks map[int]Track
	ids    []int
}

// Load reads a trajectory CSV file. Rows are
// [agentId, timeIndex, x, z, y, speed]; a single header row is
// tolerated.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trajectory file: %w", err)
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader reads trajectory CSV rows from r. Row conversion runs on
// a worker per CPU; grouping into per-id tracks stays single-threaded
// so track order never depends on scheduling.
func LoadReader(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read trajectory CSV: %w", err)
	}

	firstRow := 1
	if len(records) > 0 && looksLikeHeader(records[0]) {
		records = records[1:]
		firstRow = 2
	}

	samples, err := parseRows(records, firstRow)
	if err != nil {
		return nil, err
	}

	return buildStore(samples)
}

// looksLikeHeader reports whether a row is a column-name header rather
// than data.
func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, err := strconv.Atoi(row[0])
	return err != nil
}

// parseRows converts CSV records to samples. Rows are independent, so
// conversion is split into contiguous chunks handled by one worker
// each; the output slice is ordered exactly as the input regardless of
// worker scheduling.
func parseRows(records [][]string, firstRow int) ([]Sample, error) {
	samples := make([]Sample, len(records))
	if len(records) == 0 {
		return samples, nil
	}

	workers := runtime.NumCPU()
	if workers > len(records) {
		workers = len(records)
	}
	chunk := (len(records) + workers - 1) / workers

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				s, err := parseRow(records[i])
				if err != nil {
					errs[w] = &DataFormatError{Row: firstRow + i, Err: err}
					return
				}
				samples[i] = s
			}
		}(w, start, end)
	}
	wg.Wait()

	// Report the earliest failure so the message points at the first
	// bad row, not whichever worker lost the race.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func parseRow(row []string) (Sample, error) {
	var s Sample
	var err error
	if s.AgentID, err = strconv.Atoi(row[0]); err != nil {
		return s, fmt.Errorf("bad agent id %q", row[0])
	}
	if s.TimeIndex, err = strconv.Atoi(row[1]); err != nil {
		return s, fmt.Errorf("bad time index %q", row[1])
	}
	if s.X, err = strconv.ParseFloat(row[2], 64); err != nil {
		return s, fmt.Errorf("bad x %q", row[2])
	}
	if s.Z, err = strconv.ParseFloat(row[3], 64); err != nil {
		return s, fmt.Errorf("bad z %q", row[3])
	}
	if s.Y, err = strconv.ParseFloat(row[4], 64); err != nil {
		return s, fmt.Errorf("bad y %q", row[4])
	}
	if s.Speed, err = strconv.ParseFloat(row[5], 64); err != nil {
		return s, fmt.Errorf("bad speed %q", row[5])
	}
	if s.TimeIndex < 0 {
		return s, fmt.Errorf("negative time index %d", s.TimeIndex)
	}
	if s.Speed < 0 {
		return s, fmt.Errorf("negative speed %g", s.Speed)
	}
	return s, nil
}

// FromSamples builds a store directly from samples, grouping and
// sorting exactly as Load does. Synthetic scenarios use this to skip
// the CSV round trip.
func FromSamples(samples []Sample) (*Store, error) {
	return buildStore(samples)
}

// buildStore groups samples into per-id tracks sorted by time index.
func buildStore(samples []Sample) (*Store, error) {
	tracks := make(map[int]Track)
	for _, s := range samples {
		tracks[s.AgentID] = append(tracks[s.AgentID], s)
	}

	ids := make([]int, 0, len(tracks))
	for id, track := range tracks {
		sort.SliceStable(track, func(i, j int) bool {
			return track[i].TimeIndex < track[j].TimeIndex
		})
		for i := 1; i < len(track); i++ {
			if track[i].TimeIndex == track[i-1].TimeIndex {
				return nil, fmt.Errorf("agent %d has duplicate time index %d", id, track[i].TimeIndex)
			}
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return &Store{tracks: tracks, ids: ids}, nil
}

// Track returns the recording for one agent id.
func (s *Store) Track(id int) (Track, bool) {
	t, ok := s.tracks[id]
	return t, ok
}

// IDs returns all agent ids in ascending order.
func (s *Store) IDs() []int {
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of tracks.
func (s *Store) Len() int { return len(s.tracks) }

// MaxTimeIndex returns the largest final time index across all tracks,
// or -1 for an empty store.
func (s *Store) MaxTimeIndex() int {
	max := -1
	for _, id := range s.ids {
		if last := s.tracks[id].Last().TimeIndex; last > max {
			max = last
		}
	}
	return max
}
