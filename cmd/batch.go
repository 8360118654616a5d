package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/pkg/reviewboard"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Reconcile queued loans from the review board",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		queued, err := reviewboard.QueryQueuedLoans(ctx, env.Board, cfg.ReviewBoard.QueueDB)
		if err != nil {
			return eris.Wrap(err, "query queued loans")
		}

		limit := batchLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}

		return processBatch(ctx, queued, limit, cfg.Batch.MaxConcurrentLoans, env.Board, cfg.ReviewBoard.ExceptionDB,
			func(ctx context.Context, q reviewboard.QueuedLoan) (*model.Run, error) {
				runCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout())
				defer cancel()
				return env.Pipeline.Run(runCtx, q.LoanNumber, q.Mode)
			})
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of queued loans to process (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// runFunc is the callback signature for reconciling one queued loan.
type runFunc func(ctx context.Context, loan reviewboard.QueuedLoan) (*model.Run, error)

// processBatch applies limit, then reconciles queued loans concurrently
// using the given run function. If board is non-nil, each queue row is
// moved to its terminal status; blocked runs additionally raise an
// exception page when exceptionDB is set.
func processBatch(ctx context.Context, queued []reviewboard.QueuedLoan, limit, concurrency int, board reviewboard.Client, exceptionDB string, runOne runFunc) error {
	if len(queued) == 0 {
		zap.L().Info("no queued loans found")
		return nil
	}

	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("loans", len(queued)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var completed, blocked, failed atomic.Int64

	for _, q := range queued {
		g.Go(func() error {
			log := zap.L().With(zap.String("loan", q.LoanNumber))

			run, err := runOne(gctx, q)
			if err != nil {
				failed.Add(1)
				log.Error("reconciliation failed", zap.Error(err))
				moveQueueRow(gctx, board, q.PageID, "Failed", 0, log)
				return nil // don't abort the batch on individual failure
			}

			switch run.Status {
			case model.RunStatusCompleted:
				completed.Add(1)
				log.Info("reconciliation complete",
					zap.Int("fields_flagged", run.Report.FlaggedFields()),
					zap.Int("corrections", len(run.Report.Corrections())))
				moveQueueRow(gctx, board, q.PageID, "Reconciled", run.Report.FlaggedFields(), log)
			case model.RunStatusBlocked:
				blocked.Add(1)
				log.Warn("reconciliation blocked",
					zap.Strings("reasons", run.Report.BlockingReasons))
				moveQueueRow(gctx, board, q.PageID, "Blocked", run.Report.FlaggedFields(), log)
				raiseException(gctx, board, exceptionDB, q, run, log)
			default:
				failed.Add(1)
				log.Error("reconciliation did not complete",
					zap.String("status", string(run.Status)))
				moveQueueRow(gctx, board, q.PageID, "Failed", run.Report.FlaggedFields(), log)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("completed", completed.Load()),
		zap.Int64("blocked", blocked.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// moveQueueRow updates the board row's status, logging instead of
// failing: a board hiccup must not change the run's outcome.
func moveQueueRow(ctx context.Context, board reviewboard.Client, pageID, status string, discrepancies int, log *zap.Logger) {
	if board == nil || pageID == "" {
		return
	}
	if err := reviewboard.UpdateQueueStatus(ctx, board, pageID, status, discrepancies); err != nil {
		log.Warn("failed to update queue row", zap.String("status", status), zap.Error(err))
	}
}

// raiseException posts a blocked run to the exception database.
func raiseException(ctx context.Context, board reviewboard.Client, exceptionDB string, q reviewboard.QueuedLoan, run *model.Run, log *zap.Logger) {
	if board == nil || exceptionDB == "" {
		return
	}

	cureOwed := decimal.Zero
	if cure := run.Report.Cure(); cure != nil {
		cureOwed = cure.TotalCureNeeded
	}

	exc := reviewboard.Exception{
		LoanNumber: q.LoanNumber,
		RunID:      run.ID,
		Reasons:    run.Report.BlockingReasons,
		CureAmount: cureOwed,
	}
	if _, err := reviewboard.PostException(ctx, board, exceptionDB, exc); err != nil {
		log.Warn("failed to post exception", zap.Error(err))
	}
}
