package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/resilience"
	"github.com/meridian-lending/recon-cli/internal/simulate"
	"github.com/meridian-lending/recon-cli/internal/store"
	"github.com/meridian-lending/recon-cli/internal/tolerance"
)

// Config assembles an Orchestrator. LoanSystem and Registry are
// required; everything else is optional and degrades gracefully. A nil
// Store runs the pipeline without persistence, a nil Retry uses the
// default transient-retry policy.
type Config struct {
	LoanSystem LoanSystem
	Registry   *model.MappingRegistry
	Tolerance  *tolerance.Engine
	Store      store.Store
	Inbox      Inbox
	Extractor  Extractor
	Advisor    Advisor

	// Retry governs per-stage attempts; StageTimeout bounds each attempt.
	Retry        *resilience.RetryConfig
	StageTimeout time.Duration
	// Skip lists stage names recorded as skipped instead of executed.
	Skip []string
}

// Orchestrator drives one reconciliation run through the stage
// sequence, tracking status and persisting the report.
type Orchestrator struct {
	loans LoanSystem
	store store.Store
	reg   *model.MappingRegistry
	tol   *tolerance.Engine

	stages  []Stage
	skip    map[string]bool
	retry   resilience.RetryConfig
	timeout time.Duration
	now     func() time.Time
}

// New validates the config and builds the default stage sequence.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.LoanSystem == nil {
		return nil, eris.New("pipeline: loan system client is required")
	}
	if cfg.Registry == nil {
		return nil, eris.New("pipeline: field mapping registry is required")
	}

	tol := cfg.Tolerance
	if tol == nil {
		tol = tolerance.New(nil)
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	skip := make(map[string]bool, len(cfg.Skip))
	for _, name := range cfg.Skip {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if !KnownStage(name) {
			return nil, eris.Errorf("pipeline: unknown stage %q in skip list", name)
		}
		skip[name] = true
	}

	return &Orchestrator{
		loans: cfg.LoanSystem,
		store: cfg.Store,
		reg:   cfg.Registry,
		tol:   tol,
		stages: []Stage{
			NewPrepareStage(cfg.LoanSystem, cfg.Inbox, cfg.Extractor),
			NewReconcileStage(cfg.Advisor),
			NewToleranceStage(cfg.LoanSystem, cfg.Store),
			NewUpdateStage(cfg.LoanSystem),
			NewVerifyStage(),
			NewOrderStage(cfg.LoanSystem),
		},
		skip:    skip,
		retry:   retry,
		timeout: cfg.StageTimeout,
		now:     time.Now,
	}, nil
}

// WithNow pins the orchestrator's clock. With a pinned clock and
// identical collaborator data, two runs produce byte-identical reports.
func (o *Orchestrator) WithNow(t time.Time) *Orchestrator {
	o.now = func() time.Time { return t }
	return o
}

// Run executes the stage sequence for one loan. The returned run
// carries the full report; a Blocked or Failed run is a normal return,
// not an error. Run only errors when the loan cannot be resolved or the
// run row cannot be created.
func (o *Orchestrator) Run(ctx context.Context, loanNumber string, mode model.Mode) (*model.Run, error) {
	log := zap.L().With(
		zap.String("loan", loanNumber),
		zap.String("mode", string(mode)))
	started := o.now()

	loan, err := o.loans.GetLoan(ctx, loanNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: resolve loan %s", loanNumber)
	}

	run, err := o.createRun(ctx, *loan, mode)
	if err != nil {
		return nil, err
	}
	if run.ID != "" {
		log = log.With(zap.String("run_id", run.ID))
	}
	o.setStatus(ctx, run, model.RunStatusRunning, log)

	report := &model.RunReport{Loan: *loan, Mode: mode}
	sc := &StageContext{Loan: *loan, Mode: mode, Registry: o.reg, Tolerance: o.tol}

	status := model.RunStatusCompleted
	for i, st := range o.stages {
		name := st.Name()
		if o.skip[name] {
			report.Stages = append(report.Stages, model.StageResult{
				Stage:  name,
				Status: model.StageStatusSkipped,
			})
			log.Info("pipeline: stage skipped", zap.String("stage", name))
			continue
		}

		if i > 0 {
			if err := o.advance(ctx, sc); err != nil {
				res := model.StageResult{Stage: name, Status: model.StageStatusFailed, Error: err.Error()}
				status = model.RunStatusFailed
				if ctx.Err() != nil {
					res.Status = model.StageStatusCancelled
					status = model.RunStatusCancelled
				}
				report.Stages = append(report.Stages, res)
				log.Error("pipeline: snapshot refresh failed",
					zap.String("stage", name), zap.Error(err))
				break
			}
		}

		res, out, blocked := o.runStage(ctx, st, sc, log)
		report.Stages = append(report.Stages, res)

		if res.Status == model.StageStatusSuccess {
			o.merge(sc, out)
			continue
		}

		// Any non-success halts the remaining stages.
		o.merge(sc, out)
		switch res.Status {
		case model.StageStatusBlocked:
			status = model.RunStatusBlocked
			report.BlockingReasons = blocked.Reasons
		case model.StageStatusCancelled:
			status = model.RunStatusCancelled
		default:
			status = model.RunStatusFailed
		}
		break
	}

	report.Status = status
	o.saveReport(ctx, run, report, log)
	run.Status = status
	run.Report = report

	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("stages", len(report.Stages)),
		zap.Int64("elapsed_ms", o.now().Sub(started).Milliseconds()))
	return run, nil
}

// runStage executes one stage with per-attempt timeouts and transient
// retry, then classifies the outcome. A partial output returned next to
// an error is still recorded so blocked stages keep their evidence.
func (o *Orchestrator) runStage(ctx context.Context, st Stage, sc *StageContext, log *zap.Logger) (model.StageResult, *StageOutput, *BlockedError) {
	name := st.Name()
	res := model.StageResult{Stage: name}

	cfg := o.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("pipeline", name)
	}
	if cfg.ShouldRetry == nil {
		// An attempt timeout is retryable; run-level cancellation stays
		// terminal because the retry loop checks the outer context.
		cfg.ShouldRetry = func(err error) bool {
			return resilience.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
		}
	}

	start := o.now()
	var out *StageOutput
	attempts, err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if o.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.timeout)
			defer cancel()
		}
		stageOut, runErr := st.Run(ctx, sc)
		if stageOut != nil {
			out = stageOut
		}
		return runErr
	})
	res.Attempts = attempts
	res.ElapsedMS = o.now().Sub(start).Milliseconds()

	if out != nil {
		res.Discrepancies = out.Discrepancies
		res.Corrections = out.Corrections
		res.Cure = out.Cure
		res.Metadata = out.Metadata
	}

	var blocked *BlockedError
	switch {
	case err == nil:
		res.Status = model.StageStatusSuccess
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int("attempts", attempts),
			zap.Int64("elapsed_ms", res.ElapsedMS))
	case errors.As(err, &blocked):
		res.Status = model.StageStatusBlocked
		log.Warn("pipeline: stage blocked",
			zap.String("stage", name),
			zap.Strings("reasons", blocked.Reasons))
	case ctx.Err() != nil:
		res.Status = model.StageStatusCancelled
		res.Error = err.Error()
		log.Warn("pipeline: stage cancelled",
			zap.String("stage", name), zap.Error(err))
	default:
		res.Status = model.StageStatusFailed
		res.Error = err.Error()
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
	return res, out, blocked
}

// advance rebuilds the snapshot the next stage will see. A demo run
// projects the accumulated corrections onto the previous snapshot; a
// production run takes a fresh system read so no stage acts on stale
// state.
func (o *Orchestrator) advance(ctx context.Context, sc *StageContext) error {
	if sc.Mode != model.ModeProduction {
		sc.Snapshot = simulate.Apply(sc.Snapshot, sc.Corrections)
		return nil
	}
	snap, err := o.loans.ReadFields(ctx, sc.Loan.ID, o.reg.SystemFieldIDs())
	if err != nil {
		return eris.Wrap(err, "pipeline: refresh snapshot")
	}
	sc.Snapshot = snap
	return nil
}

// merge folds a stage's output into the shared context.
func (o *Orchestrator) merge(sc *StageContext, out *StageOutput) {
	if out == nil {
		return
	}
	if out.Snapshot != nil {
		sc.Snapshot = out.Snapshot
	}
	if out.Documents != nil {
		sc.Documents = out.Documents
	}
	if out.Extracted != nil {
		sc.Extracted = out.Extracted
	}
	if out.Discrepancies != nil {
		sc.Discrepancies = out.Discrepancies
	}
	if len(out.Corrections) > 0 {
		sc.Corrections = append(sc.Corrections, out.Corrections...)
	}
	if out.Cure != nil {
		sc.Cure = out.Cure
	}
}

func (o *Orchestrator) createRun(ctx context.Context, loan model.Loan, mode model.Mode) (*model.Run, error) {
	if o.store == nil {
		return &model.Run{Loan: loan, Mode: mode, Status: model.RunStatusPending}, nil
	}
	run, err := o.store.CreateRun(ctx, loan, mode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// setStatus persists a status transition. Persistence failures are
// logged, not fatal: the run's outcome matters more than its audit row.
func (o *Orchestrator) setStatus(ctx context.Context, run *model.Run, status model.RunStatus, log *zap.Logger) {
	run.Status = status
	if o.store == nil || run.ID == "" {
		return
	}
	if err := o.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
		log.Warn("pipeline: failed to update run status",
			zap.String("status", string(status)), zap.Error(err))
	}
}

// saveReport persists the final report. It must survive run-level
// cancellation, so it detaches from the caller's context.
func (o *Orchestrator) saveReport(ctx context.Context, run *model.Run, report *model.RunReport, log *zap.Logger) {
	if o.store == nil || run.ID == "" {
		return
	}
	if err := o.store.SaveRunReport(context.WithoutCancel(ctx), run.ID, report); err != nil {
		log.Warn("pipeline: failed to save run report", zap.Error(err))
	}
}
