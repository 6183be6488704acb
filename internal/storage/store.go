package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
)

const (
	metadataFile   = "metadata.json"
	configFile     = "config.yaml"
	trajectoryFile = "trajectory.csv"
)

var (
	// ErrRunNotFound is returned when no stored run has the requested ID.
	ErrRunNotFound = errors.New("storage: run not found")
	// ErrInvalidRunID is returned for IDs that do not name a single entry
	// directly under the data directory.
	ErrInvalidRunID = errors.New("storage: invalid run id")
)

// Store keeps one directory per run under baseDir.
type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Dir() string { return s.baseDir }

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string                      `json:"id"`
	Name         string                      `json:"name"`
	Timestamp    time.Time                   `json:"timestamp"`
	Status       string                      `json:"status"`
	StopReason   string                      `json:"stop_reason"`
	Controller   string                      `json:"controller"`
	Integrator   string                      `json:"integrator"`
	SamplePeriod float64                     `json:"sample_period"`
	FineStep     float64                     `json:"fine_step_size"`
	Duration     float64                     `json:"run_duration"`
	Ticks        int                         `json:"ticks"`
	FineSteps    int                         `json:"fine_steps"`
	Samples      int                         `json:"samples"`
	Final        float64                     `json:"final_temperature"`
	Warnings     []dynamo.InstabilityWarning `json:"warnings,omitempty"`
	Metrics      map[string]float64          `json:"metrics"`
}

// NewID returns a fresh, time-ordered run ID.
func NewID() string { return xid.New().String() }

// Save writes the run's metadata, config snapshot and trajectory under a new
// run ID and returns it.
func (s *Store) Save(cfg *config.Config, result *dynamo.Result) (string, error) {
	return s.SaveAs(NewID(), cfg, result)
}

// SaveAs is Save with a caller-chosen ID, e.g. one already used by a
// SQLiteRecorder for the same run.
func (s *Store) SaveAs(runID string, cfg *config.Config, result *dynamo.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("storage: nil result")
	}
	runDir, err := s.path(runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Name:         cfg.Name,
		Timestamp:    s.now().UTC(),
		Status:       result.Status.String(),
		StopReason:   result.StopReason,
		Controller:   cfg.Controller,
		Integrator:   cfg.Integrator,
		SamplePeriod: cfg.SamplePeriod,
		FineStep:     cfg.FineStepSize,
		Duration:     cfg.RunDuration,
		Ticks:        result.Ticks,
		FineSteps:    result.FineSteps,
		Samples:      len(result.Trajectory),
		Final:        finite(result.Trajectory.Last().Temperature),
		Warnings:     result.Warnings,
		Metrics:      finiteMetrics(result.Metrics),
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, trajectoryFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := WriteCSV(f, result.Trajectory); err != nil {
		return "", err
	}
	return runID, f.Close()
}

// List returns every readable run, newest first.
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

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	path, err := s.path(runID, metadataFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notFound(runID, err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadConfig returns the configuration snapshot the run was started with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	path, err := s.path(runID, configFile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, notFound(runID, err)
	}
	return config.Load(path)
}

func (s *Store) LoadTrajectory(runID string) (dynamo.Trajectory, error) {
	path, err := s.path(runID, trajectoryFile)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, notFound(runID, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ExportJSON writes the run's metadata and trajectory as one document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	tr, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	return WriteJSON(w, meta, tr)
}

// Delete removes a stored run.
func (s *Store) Delete(runID string) error {
	dir, err := s.path(runID)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return notFound(runID, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return os.RemoveAll(dir)
}

func (s *Store) path(runID string, elem ...string) (string, error) {
	if err := ValidateID(runID); err != nil {
		return "", err
	}
	return filepath.Join(append([]string{s.baseDir, runID}, elem...)...), nil
}

// ValidateID accepts xid run IDs and the plain names scenarios store runs
// under. Path separators and the "." and ".." entries are rejected.
func ValidateID(runID string) error {
	if _, err := xid.FromString(runID); err == nil {
		return nil
	}
	if runID == "" || runID == "." || runID == ".." ||
		strings.ContainsAny(runID, `/\`) || runID != filepath.Base(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

func notFound(runID string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return err
}

// Export is the JSON document produced by ExportJSON.
type Export struct {
	Run        *RunMetadata      `json:"run,omitempty"`
	Trajectory dynamo.Trajectory `json:"trajectory"`
}

func WriteJSON(w io.Writer, meta *RunMetadata, tr dynamo.Trajectory) error {
	if tr == nil {
		tr = dynamo.Trajectory{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Export{Run: meta, Trajectory: tr})
}

var csvHeader = []string{"t", "temperature", "command", "setpoint"}

// WriteCSV writes a trajectory with a header row.
func WriteCSV(w io.Writer, tr dynamo.Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range tr {
		row := []string{
			formatFloat(s.Time),
			formatFloat(s.Temperature),
			formatFloat(s.Command),
			formatFloat(s.Setpoint),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the output of WriteCSV.
func ReadCSV(r io.Reader) (dynamo.Trajectory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return dynamo.Trajectory{}, nil
	}

	tr := make(dynamo.Trajectory, 0, len(records)-1)
	for i, record := range records[1:] {
		var v [4]float64
		for j := range v {
			v[j], err = strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", i+1, csvHeader[j], err)
			}
		}
		tr = append(tr, dynamo.Sample{Time: v[0], Temperature: v[1], Command: v[2], Setpoint: v[3]})
	}
	return tr, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
