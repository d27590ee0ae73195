package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fpgranules/internal/models"
	"fpgranules/pkg/aggregate"
)

// Manifest describes a completed prominence run. It is written as run.yaml next to the tables.
type Manifest struct {
	RunID      string    `yaml:"runId"`
	Date       string    `yaml:"date"`
	Prominence int       `yaml:"prominence"`
	SourceDir  string    `yaml:"sourceDir"`
	StartedAt  time.Time `yaml:"startedAt"`
	FinishedAt time.Time `yaml:"finishedAt"`
	Images     []string  `yaml:"images"`

	Parameters struct {
		Sigma              float64 `yaml:"sigma"`
		Accuracy           float64 `yaml:"accuracy"`
		BoundaryBallRadius float64 `yaml:"boundaryBallRadius"`
		SignalBallRadius   float64 `yaml:"signalBallRadius"`
		MinArea            int     `yaml:"minArea"`
		MaxArea            int     `yaml:"maxArea"`
		Workers            int     `yaml:"workers"`
	} `yaml:"parameters"`

	Stats struct {
		Cells               int     `yaml:"cells"`
		FociCells           int     `yaml:"fociCells"`
		Granules            int     `yaml:"granules"`
		GranulesPerCellMean float64 `yaml:"granulesPerCellMean"`
		GranulesPerCellStd  float64 `yaml:"granulesPerCellStd"`
		FociIntensityMean   float64 `yaml:"fociIntensityMean"`
		FociIntensityStd    float64 `yaml:"fociIntensityStd"`
		PctFociCellMean     float64 `yaml:"pctFociCellMean"`
	} `yaml:"stats"`
}

func (d *Driver) newManifest(run RunSummary, b *aggregate.Batch, started time.Time) *Manifest {
	m := &Manifest{
		RunID:      run.RunID,
		Date:       d.params.Date,
		Prominence: run.Prominence,
		SourceDir:  d.params.SourceDir,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Images:     make([]string, 0, len(b.Summaries)),
	}
	for _, s := range b.Summaries {
		m.Images = append(m.Images, s.FileName)
	}

	p := d.params
	m.Parameters.Sigma = p.Preprocess.Sigma
	m.Parameters.Accuracy = p.Preprocess.Accuracy
	m.Parameters.BoundaryBallRadius = p.Preprocess.BoundaryBallRadius
	m.Parameters.SignalBallRadius = p.Preprocess.SignalBallRadius
	m.Parameters.MinArea = p.Segment.MinArea
	m.Parameters.MaxArea = p.Segment.MaxArea
	m.Parameters.Workers = p.Workers

	st := run.Stats
	m.Stats.Cells = st.Cells
	m.Stats.FociCells = st.FociCells
	m.Stats.Granules = st.Granules
	m.Stats.GranulesPerCellMean = st.GranulesPerCellMean
	m.Stats.GranulesPerCellStd = st.GranulesPerCellStd
	m.Stats.FociIntensityMean = st.FociIntensityMean
	m.Stats.FociIntensityStd = st.FociIntensityStd
	m.Stats.PctFociCellMean = st.PctFociCellMean
	return m
}

func writeManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &models.FilesystemError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// ReadManifest loads a run.yaml written by a previous run
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	return m, nil
}
