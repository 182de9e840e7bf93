// Package storage persists recorded control runs, one directory per run
// holding metadata.json and ticks.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/velocity"
)

const (
	metadataFile = "metadata.json"
	ticksFile    = "ticks.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

var tickHeader = []string{"n", "time", "target", "measured", "throttle", "fresh"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Mode       string             `json:"mode"`
	Preset     string             `json:"preset,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Controller string             `json:"controller"`
	Integrator string             `json:"integrator,omitempty"`
	Period     float64            `json:"period"`
	Duration   float64            `json:"duration"`
	Ticks      int                `json:"ticks"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes a new run and returns its ID. ID, Ticks and a zero Timestamp
// are filled in.
func (s *Store) Save(meta RunMetadata, ticks []loop.Tick) (string, error) {
	if err := s.Init(); err != nil {
		return "", errors.Wrap(err, "creating run store")
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runID, runDir, err := s.newRunDir(meta)
	if err != nil {
		return "", err
	}
	meta.ID = runID
	meta.Ticks = len(ticks)

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", errors.Wrap(err, "writing run metadata")
	}
	if err := writeTicks(filepath.Join(runDir, ticksFile), ticks); err != nil {
		return "", errors.Wrap(err, "writing run ticks")
	}
	return runID, nil
}

func (s *Store) newRunDir(meta RunMetadata) (string, string, error) {
	base := fmt.Sprintf("%s_%s_%d", meta.Mode, meta.Controller, meta.Timestamp.Unix())
	for i := 0; ; i++ {
		runID := base
		if i > 0 {
			runID = fmt.Sprintf("%s_%d", base, i)
		}
		runDir := filepath.Join(s.baseDir, runID)
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			return runID, runDir, nil
		}
		if !os.IsExist(err) {
			return "", "", errors.Wrapf(err, "creating run directory %s", runDir)
		}
	}
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

func writeTicks(path string, ticks []loop.Tick) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tickHeader); err != nil {
		return err
	}
	for _, t := range ticks {
		row := []string{
			strconv.Itoa(t.N),
			formatFloat(t.Elapsed.Seconds()),
			formatSample(t.Target),
			formatSample(t.Measured),
			formatFloat(t.Throttle),
			strconv.FormatBool(t.Fresh),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// formatSample leaves unknown speeds empty.
func formatSample(s velocity.Sample) string {
	if !s.OK {
		return ""
	}
	return formatFloat(s.Value)
}

func parseSample(field string) (velocity.Sample, error) {
	if field == "" {
		return velocity.Unknown, nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return velocity.Unknown, err
	}
	return velocity.Known(v), nil
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
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
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrRunNotFound, "%q", runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "decoding metadata of %s", runID)
	}
	return &meta, nil
}

// LoadTicks reads a run's tick records back. Rows that fail to parse are
// skipped.
func (s *Store) LoadTicks(runID string) ([]loop.Tick, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, ticksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrRunNotFound, "%q", runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading ticks of %s", runID)
	}
	if len(records) < 2 {
		return []loop.Tick{}, nil
	}

	ticks := make([]loop.Tick, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != len(tickHeader) {
			continue
		}
		t, err := parseTick(record)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

func parseTick(record []string) (loop.Tick, error) {
	var t loop.Tick
	n, err := strconv.Atoi(record[0])
	if err != nil {
		return t, err
	}
	secs, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return t, err
	}
	target, err := parseSample(record[2])
	if err != nil {
		return t, err
	}
	measured, err := parseSample(record[3])
	if err != nil {
		return t, err
	}
	throttle, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return t, err
	}
	fresh, err := strconv.ParseBool(record[5])
	if err != nil {
		return t, err
	}
	return loop.Tick{
		N:        n,
		Elapsed:  time.Duration(secs * float64(time.Second)),
		Target:   target,
		Measured: measured,
		Throttle: throttle,
		Fresh:    fresh,
	}, nil
}
