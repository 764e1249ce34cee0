// Package storage keeps finished runs on disk: a metadata file, the state
// trajectory as CSV and the case that produced it.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/griddae/internal/config"
	"github.com/san-kum/griddae/internal/sim"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
	caseFile     = "case.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type TriggerRecord struct {
	Time float64 `json:"time"`
	Name string  `json:"name"`
	Mode string  `json:"mode"`
	Code string  `json:"code"`
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Case       string             `json:"case"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Steps      int                `json:"steps"`
	Iterations int                `json:"iterations"`
	Relayouts  int                `json:"relayouts"`
	Labels     []string           `json:"labels"`
	Triggers   []TriggerRecord    `json:"triggers,omitempty"`
	Stats      map[string]float64 `json:"stats,omitempty"`
}

// Save writes a run and returns its id. labels name the state columns;
// when a run relayouts, rows keep whatever width the state had.
func (s *Store) Save(c *config.Case, labels []string, result *sim.Result, stats map[string]float64) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", c.Name, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Case:       c.Name,
		Timestamp:  now,
		Dt:         c.Solver.Dt,
		Duration:   c.Solver.Duration,
		Steps:      result.StepsTaken,
		Iterations: result.Iterations,
		Relayouts:  result.Relayouts,
		Labels:     labels,
		Stats:      stats,
	}
	for _, tr := range result.Triggers {
		meta.Triggers = append(meta.Triggers, TriggerRecord{
			Time: tr.Time,
			Name: tr.Name,
			Mode: tr.Mode,
			Code: tr.Code.String(),
		})
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, caseFile), c); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, statesFile), labels, result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStates(path string, labels []string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time"}, labels...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range result.States {
		row := []string{strconv.FormatFloat(result.Times[i], 'f', 6, 64)}
		for _, val := range result.States[i] {
			row = append(row, strconv.FormatFloat(val, 'g', 10, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadCase returns the case a run was made from.
func (s *Store) LoadCase(runID string) (*config.Case, error) {
	return config.Load(filepath.Join(s.baseDir, runID, caseFile))
}

func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return [][]float64{}, []float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	states := make([][]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: bad time %q", runID, record[0])
		}
		state := make([]float64, 0, len(record)-1)
		for _, field := range record[1:] {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: bad value %q at t=%g", runID, field, t)
			}
			state = append(state, val)
		}
		times = append(times, t)
		states = append(states, state)
	}
	return states, times, nil
}

type ExportData struct {
	RunMetadata
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
}

// ExportJSON writes a run with its trajectory as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := s.LoadStates(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{RunMetadata: *meta, Times: times, States: states})
}
