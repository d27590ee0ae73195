// Package pipeline runs the granule quantification over a directory of images, once per
// prominence value, and hands the resulting tables and images to the output writers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fpgranules/internal/logger"
	"fpgranules/internal/models"
	"fpgranules/pkg/aggregate"
	"fpgranules/pkg/imageio"
	"fpgranules/pkg/morphology"
	"fpgranules/pkg/preprocess"
	"fpgranules/pkg/render"
	"fpgranules/pkg/report"
	"fpgranules/pkg/segment"
	"fpgranules/pkg/store"
)

// Output subdirectories of every prominence directory
const (
	DirBF       = "BF"
	DirDrawings = "Drawings"
	DirGreen    = "Green"
	DirMerge    = "merge"

	// FailedMarker is written into a prominence directory whose run did not complete
	FailedMarker = "FAILED"
	// ManifestFile describes a completed run
	ManifestFile = "run.yaml"
)

// MaxProminences is the number of prominence slots accepted per run
const MaxProminences = 3

// Params holds the run configuration
type Params struct {
	// Date labels every row and names the output directories and tables
	Date string

	// Prominences lists up to three detection tolerances; 0 skips the slot
	Prominences []int

	SourceDir string
	DestDir   string

	// Extension selects the input files, e.g. "tif"
	Extension string

	// Workers analyses that many images concurrently when greater than 1.
	// Results are still merged in file order.
	Workers int

	Preprocess preprocess.Options
	Segment    segment.Options

	// DateGuard prefixes the date with a blank in the CSV tables
	DateGuard bool

	// Plot saves a pct_foci_cell bar chart per prominence
	Plot bool
}

// TableSink persists the two tables of a batch into a directory
type TableSink interface {
	WriteTables(dir string, b *aggregate.Batch) error
}

// BatchStore persists a batch under a run identifier
type BatchStore interface {
	SaveBatch(ctx context.Context, run store.Run, b *aggregate.Batch) error
}

// Deps are the collaborators of the driver. Nil fields get the TIFF and CSV defaults;
// Store stays optional.
type Deps struct {
	Loader      imageio.Loader
	Saver       imageio.Saver
	Tables      TableSink
	Store       BatchStore
	MaskBuilder MaskBuilder
	Logger      zerolog.Logger
}

// RunSummary describes the outcome of one prominence run
type RunSummary struct {
	RunID      string
	Prominence int
	Dir        string
	Images     int
	Stats      aggregate.Stats
	Err        error
}

// Driver runs the pipeline once per prominence
type Driver struct {
	params Params
	deps   Deps
	log    zerolog.Logger
	runs   []RunSummary
}

// NewDriver creates a driver, filling unset dependencies with defaults
func NewDriver(params Params, deps Deps) *Driver {
	if deps.Loader == nil {
		deps.Loader = imageio.TIFFLoader{}
	}
	if deps.Saver == nil {
		deps.Saver = imageio.TIFFSaver{}
	}
	if deps.Tables == nil {
		deps.Tables = report.CSVSink{Options: report.Options{DateGuard: params.DateGuard}}
	}
	if deps.MaskBuilder == nil {
		deps.MaskBuilder = morphology.BuildCellMask
	}
	if params.Extension == "" {
		params.Extension = "tif"
	}
	return &Driver{
		params: params,
		deps:   deps,
		log:    logger.Component(deps.Logger, "pipeline"),
	}
}

// Runs returns the summaries of the prominence runs of the last Process call
func (d *Driver) Runs() []RunSummary {
	return d.runs
}

// OutputDir names the directory of one prominence run
func OutputDir(dest, date string, prominence int) string {
	return filepath.Join(dest, fmt.Sprintf("%s_prom%d_output", strings.TrimSpace(date), prominence))
}

// Process runs every non-zero prominence in order. A failing prominence is marked with
// a FAILED file and the next one still runs; the joined errors are returned. A cancelled
// context stops the run between images.
func (d *Driver) Process(ctx context.Context) error {
	d.runs = nil
	if len(d.params.Prominences) > MaxProminences {
		return fmt.Errorf("at most %d prominences allowed, got %d", MaxProminences, len(d.params.Prominences))
	}
	for _, p := range d.params.Prominences {
		if p < 0 {
			return fmt.Errorf("prominence %d is negative", p)
		}
	}

	var errs []error
	for _, prom := range d.params.Prominences {
		if prom == 0 {
			d.log.Debug().Msg("skipping prominence slot set to 0")
			continue
		}

		start := time.Now()
		run, err := d.processProminence(ctx, prom)
		run.Err = err
		d.runs = append(d.runs, run)

		if err != nil {
			err = fmt.Errorf("prominence %d: %w", prom, err)
			errs = append(errs, err)
			d.markFailed(run.Dir, err)
			d.log.Error().Err(err).Int("prominence", prom).Msg("prominence run failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		d.log.Info().
			Int("prominence", prom).
			Int("images", run.Images).
			Int("cells", run.Stats.Cells).
			Int("foci_cells", run.Stats.FociCells).
			Int("granules", run.Stats.Granules).
			Dur("elapsed", time.Since(start)).
			Msg("prominence run complete")
	}
	return errors.Join(errs...)
}

func (d *Driver) markFailed(dir string, err error) {
	if dir == "" {
		return
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		return
	}
	path := filepath.Join(dir, FailedMarker)
	if werr := os.WriteFile(path, []byte(err.Error()+"\n"), 0644); werr != nil {
		d.log.Warn().Err(werr).Str("path", path).Msg("could not write failure marker")
	}
}

type outputDirs struct {
	root, bf, drawings, green, merge string
}

func makeOutputDirs(root string) (outputDirs, error) {
	dirs := outputDirs{
		root:     root,
		bf:       filepath.Join(root, DirBF),
		drawings: filepath.Join(root, DirDrawings),
		green:    filepath.Join(root, DirGreen),
		merge:    filepath.Join(root, DirMerge),
	}
	for _, dir := range []string{dirs.bf, dirs.drawings, dirs.green, dirs.merge} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return dirs, &models.FilesystemError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if err := os.Remove(filepath.Join(root, FailedMarker)); err != nil && !os.IsNotExist(err) {
		return dirs, &models.FilesystemError{Op: "remove", Path: filepath.Join(root, FailedMarker), Err: err}
	}
	return dirs, nil
}

func (d *Driver) processProminence(ctx context.Context, prom int) (RunSummary, error) {
	run := RunSummary{
		RunID:      uuid.NewString(),
		Prominence: prom,
		Dir:        OutputDir(d.params.DestDir, d.params.Date, prom),
	}
	log := d.log.With().Int("prominence", prom).Str("run_id", run.RunID).Logger()
	started := time.Now()

	dirs, err := makeOutputDirs(run.Dir)
	if err != nil {
		return run, err
	}

	files, err := imageio.ListImages(d.params.SourceDir, d.params.Extension)
	if err != nil {
		return run, err
	}
	log.Info().Int("files", len(files)).Str("dir", run.Dir).Msg("starting prominence run")

	agg := aggregate.New(d.params.Date, prom)
	err = d.analyseAll(ctx, files, float64(prom), func(a *Analysis) error {
		summaries, err := agg.Merge(a.Result())
		if err != nil {
			return err
		}
		if err := d.saveArtifacts(dirs, a); err != nil {
			return err
		}
		s := summaries[0]
		log.Debug().
			Str("image", a.Name).
			Int("cells", s.TotalCellNumber).
			Int("foci_cells", s.FociCell).
			Float64("pct_foci_cell", s.PctFociCell).
			Msg("image analysed")
		if s.Degenerate() {
			log.Warn().Str("image", a.Name).Msg(models.ErrDegenerateImage.Error())
		}
		return nil
	})
	if err != nil {
		return run, err
	}

	batch, err := agg.FinalizeBatch()
	if err != nil {
		return run, err
	}
	run.Images = len(batch.Summaries)
	run.Stats = batch.Stats()

	if err := d.deps.Tables.WriteTables(dirs.root, batch); err != nil {
		return run, err
	}
	if d.params.Plot && len(batch.Summaries) > 0 {
		path := filepath.Join(dirs.root, strings.TrimSpace(d.params.Date)+"_pct_foci_cell.png")
		if err := report.PlotSummary(batch.Summaries, path); err != nil {
			return run, err
		}
	}
	if d.deps.Store != nil {
		r := store.Run{ID: run.RunID, Date: d.params.Date, SourceDir: d.params.SourceDir, StartedAt: started}
		if err := d.deps.Store.SaveBatch(ctx, r, batch); err != nil {
			return run, fmt.Errorf("store batch: %w", err)
		}
	}
	if err := writeManifest(filepath.Join(dirs.root, ManifestFile), d.newManifest(run, batch, started)); err != nil {
		return run, err
	}
	return run, nil
}

// analyseFile loads one image, analyses it and drops the raw channels
func (d *Driver) analyseFile(name string, prominence float64) (*Analysis, error) {
	stack, err := d.deps.Loader.Load(filepath.Join(d.params.SourceDir, name))
	if err != nil {
		return nil, err
	}
	defer stack.Release()
	return Analyse(stack, prominence, d.params.Preprocess, d.params.Segment, d.deps.MaskBuilder)
}

type outcome struct {
	analysis *Analysis
	err      error
	// held is true when the producing worker still owns a semaphore slot
	held bool
}

// analyseAll analyses files in order and calls handle for each, in order. With more than
// one worker, analyses run ahead concurrently but at most Workers results are in memory.
func (d *Driver) analyseAll(ctx context.Context, files []string, prominence float64, handle func(*Analysis) error) error {
	if d.params.Workers <= 1 {
		for _, name := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := d.analyseFile(name, prominence)
			if err != nil {
				return err
			}
			if err := handle(a); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	slots := make([]chan outcome, len(files))
	for i := range slots {
		slots[i] = make(chan outcome, 1)
	}
	sem := make(chan struct{}, d.params.Workers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i, name := range files {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				slots[i] <- outcome{err: ctx.Err()}
				continue
			}
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				if err := ctx.Err(); err != nil {
					slots[i] <- outcome{err: err, held: true}
					return
				}
				a, err := d.analyseFile(name, prominence)
				slots[i] <- outcome{analysis: a, err: err, held: true}
			}(i, name)
		}
	}()

	for i := range files {
		o := <-slots[i]
		if o.held {
			<-sem
		}
		if o.err != nil {
			return o.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handle(o.analysis); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) saveArtifacts(dirs outputDirs, a *Analysis) error {
	w, h := a.Width(), a.Height()
	if err := d.deps.Saver.Save(render.Gray16(a.Signal), dirs.green, a.Name); err != nil {
		return err
	}
	if err := d.deps.Saver.Save(render.Gray16(a.Boundary), dirs.bf, a.Name); err != nil {
		return err
	}
	if err := d.deps.Saver.Save(render.Outlines(w, h, a.Regions), dirs.drawings, a.Name); err != nil {
		return err
	}
	if err := d.deps.Saver.Save(render.Composite(a.Signal, a.Boundary), dirs.merge, a.Name); err != nil {
		return err
	}
	return d.deps.Saver.Save(render.GranuleMask(w, h, a.AllGranules()), dirs.drawings, a.Name+"_foci_location")
}
