// Package app wires configuration, scenario loading, dispatch, export and
// publication into a single run.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridinertia/config"
	"github.com/kilianp07/gridinertia/core/dispatch"
	coremetrics "github.com/kilianp07/gridinertia/core/metrics"
	coremon "github.com/kilianp07/gridinertia/core/monitoring"
	"github.com/kilianp07/gridinertia/core/solver"
	"github.com/kilianp07/gridinertia/infra/logger"
	"github.com/kilianp07/gridinertia/infra/metrics"
	"github.com/kilianp07/gridinertia/infra/mqtt"
	"github.com/kilianp07/gridinertia/internal/eventbus"
	"github.com/kilianp07/gridinertia/pkg/export"
	"github.com/kilianp07/gridinertia/scenario"
)

// Publisher receives the decoded schedule of a run.
type Publisher interface {
	PublishSchedule(ctx context.Context, runID, scenario string, res dispatch.Results) (int, error)
	PublishStatus(ctx context.Context, msg mqtt.StatusMessage) error
	Disconnect()
}

// Report summarises one run.
type Report struct {
	RunID     string
	Scenario  string
	Status    string
	Objective float64
	Stats     dispatch.Stats
	// Files lists the exported result files.
	Files []string
	// Published counts the schedule messages sent to the broker.
	Published int
}

// Stage is a step of a run.
type Stage string

const (
	StageCompiled  Stage = "compiled"
	StageSolved    Stage = "solved"
	StageExported  Stage = "exported"
	StagePublished Stage = "published"
	StageFailed    Stage = "failed"
)

// RunEvent reports the progress of a run to subscribers of Events.
type RunEvent struct {
	RunID    string
	Scenario string
	Stage    Stage
	Time     time.Time
	// Detail is a short human-readable summary of the stage.
	Detail string
	Err    error
}

// Service runs scenarios with the settings of one configuration.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	sink      coremetrics.MetricsSink
	publisher Publisher
	events    *eventbus.Bus[RunEvent]
	stop      context.CancelFunc
}

// New builds the metrics sinks and the MQTT publisher described by cfg.
// When a Prometheus address is configured the endpoint is served until
// Close.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc := &Service{cfg: cfg, log: logger.New("service"), sink: sink, events: eventbus.New[RunEvent](), stop: func() {}}
	if cfg.MQTT.Enabled() {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	if addr := cfg.Metrics.PrometheusAddr; addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		svc.stop = cancel
		go func() {
			if err := metrics.StartPromServer(srvCtx, addr, nil); err != nil {
				svc.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return svc, nil
}

// WithPublisher replaces the publisher built from the configuration.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithMetrics replaces the metrics sink built from the configuration.
func (s *Service) WithMetrics(m coremetrics.MetricsSink) *Service {
	s.sink = m
	return s
}

// Events subscribes to the progress of later runs. The channel is closed
// by Close; events are dropped while it is full.
func (s *Service) Events() <-chan RunEvent { return s.events.Subscribe() }

func (s *Service) emit(rep *Report, stage Stage, detail string, err error) {
	s.events.Publish(RunEvent{
		RunID:    rep.RunID,
		Scenario: rep.Scenario,
		Stage:    stage,
		Time:     time.Now(),
		Detail:   detail,
		Err:      err,
	})
}

// Compile loads the scenario at path and compiles it without solving.
func (s *Service) Compile(path string) (*dispatch.Model, *scenario.Scenario, error) {
	return s.compile(path, "")
}

func (s *Service) compile(path, runID string) (*dispatch.Model, *scenario.Scenario, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load scenario: %w", err)
	}
	table, err := sc.LoadProfiles()
	if err != nil {
		return nil, sc, fmt.Errorf("load profiles: %w", err)
	}
	es, err := sc.Build(table)
	if err != nil {
		return nil, sc, fmt.Errorf("build %s: %w", sc.Name, err)
	}
	m, err := dispatch.NewModel(es, dispatch.Options{
		RelaxCommitment: s.cfg.Solver.RelaxCommitment,
		RunID:           runID,
		Scenario:        sc.Name,
		SolverName:      s.cfg.Solver.Type,
		Logger:          logger.New("dispatch"),
		Metrics:         s.sink,
	})
	if err != nil {
		return nil, sc, fmt.Errorf("compile %s: %w", sc.Name, err)
	}
	return m, sc, nil
}

// Validate loads and compiles the scenario at path and reports its size.
func (s *Service) Validate(path string) (*Report, error) {
	m, sc, err := s.Compile(path)
	if err != nil {
		return nil, err
	}
	return &Report{Scenario: sc.Name, Status: "compiled", Stats: m.Stats()}, nil
}

// Run compiles, solves and exports the scenario at path. The outcome is
// published when a broker is configured, failures included.
func (s *Service) Run(ctx context.Context, path string) (rep *Report, err error) {
	runID := uuid.NewString()
	tags := map[string]string{"module": "app", "run_id": runID, "scenario": path}
	defer coremon.RecoverAndReport(tags)
	rep = &Report{RunID: runID, Status: "error"}
	defer func() {
		if err != nil {
			coremon.CaptureException(err, tags)
			s.log.Errorf("run %s failed: %v", runID, err)
			s.emit(rep, StageFailed, rep.Status, err)
		}
		s.publishStatus(ctx, rep, err)
	}()

	m, sc, err := s.compile(path, runID)
	if sc != nil {
		rep.Scenario = sc.Name
		tags["scenario"] = sc.Name
	}
	if err != nil {
		return rep, err
	}
	rep.Stats = m.Stats()
	s.emit(rep, StageCompiled, fmt.Sprintf("%d variables, %d integers, %d constraints",
		rep.Stats.Variables, rep.Stats.Integers, rep.Stats.Constraints), nil)

	backend, err := solver.New(s.cfg.Solver.Module())
	if err != nil {
		return rep, fmt.Errorf("solver: %w", err)
	}
	solveCtx := ctx
	if d := s.cfg.Solver.Timeout(); d > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	s.log.Infof("run %s: solving %s with %s (%d variables, %d integers, %d constraints)",
		runID, sc.Name, s.cfg.Solver.Type, rep.Stats.Variables, rep.Stats.Integers, rep.Stats.Constraints)
	if err := m.Solve(solveCtx, backend); err != nil {
		var ierr *dispatch.InfeasibleError
		if errors.As(err, &ierr) {
			rep.Status = solver.StatusInfeasible.String()
		}
		return rep, err
	}
	res, err := m.Results()
	if err != nil {
		return rep, err
	}
	rep.Status = solver.StatusOptimal.String()
	rep.Objective = res.Objective()
	s.emit(rep, StageSolved, fmt.Sprintf("objective %.6g", rep.Objective), nil)

	files, err := s.export(runID, sc.Name, res)
	rep.Files = files
	if err != nil {
		return rep, fmt.Errorf("export: %w", err)
	}
	s.emit(rep, StageExported, fmt.Sprintf("%d files", len(files)), nil)
	if s.publisher != nil {
		n, err := s.publisher.PublishSchedule(ctx, runID, sc.Name, res)
		rep.Published = n
		if err != nil {
			return rep, fmt.Errorf("publish: %w", err)
		}
		s.emit(rep, StagePublished, fmt.Sprintf("%d schedules", n), nil)
	}
	s.log.Infof("run %s: objective %.6g, %d files written", runID, rep.Objective, len(files))
	return rep, nil
}

func (s *Service) export(runID, name string, res dispatch.Results) ([]string, error) {
	dir := filepath.Join(s.cfg.Export.Dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var files []string
	for _, format := range s.cfg.Export.Formats {
		var (
			file  string
			write func(*os.File) error
		)
		switch format {
		case config.FormatCSV:
			file = "dispatch.csv"
			write = func(f *os.File) error { return export.WriteCSV(f, res) }
		case config.FormatInertiaCSV:
			file = "inertia.csv"
			write = func(f *os.File) error { return export.WriteInertiaCSV(f, res) }
		case config.FormatJSON:
			file = "dispatch.json"
			write = func(f *os.File) error { return export.WriteJSON(f, runID, name, res) }
		case config.FormatChart:
			file = "dispatch.html"
			write = func(f *os.File) error {
				return export.WriteChart(f, res, export.ChartOptions{Title: name})
			}
		default:
			return files, fmt.Errorf("unknown format %q", format)
		}
		path := filepath.Join(dir, file)
		if err := writeFile(path, write); err != nil {
			return files, fmt.Errorf("%s: %w", format, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func writeFile(path string, write func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func (s *Service) publishStatus(ctx context.Context, rep *Report, runErr error) {
	if s.publisher == nil || rep.Scenario == "" {
		return
	}
	msg := mqtt.StatusMessage{
		RunID:     rep.RunID,
		Scenario:  rep.Scenario,
		Status:    rep.Status,
		Objective: rep.Objective,
		Timestamp: time.Now(),
	}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	if err := s.publisher.PublishStatus(ctx, msg); err != nil {
		s.log.Warnf("publish status: %v", err)
	}
}

// Close stops the metrics endpoint and releases the broker connection.
func (s *Service) Close() error {
	s.stop()
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.events.Close()
	coremon.Flush(2 * time.Second)
	return nil
}
