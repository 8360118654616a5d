package main

import (
	"context"
	"fmt"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/docinbox"
	"github.com/meridian-lending/recon-cli/internal/pipeline"
	"github.com/meridian-lending/recon-cli/internal/registry"
	"github.com/meridian-lending/recon-cli/internal/resilience"
	"github.com/meridian-lending/recon-cli/internal/store"
	"github.com/meridian-lending/recon-cli/internal/tolerance"
	"github.com/meridian-lending/recon-cli/pkg/advisor"
	"github.com/meridian-lending/recon-cli/pkg/extraction"
	"github.com/meridian-lending/recon-cli/pkg/loansystem"
	"github.com/meridian-lending/recon-cli/pkg/reviewboard"
)

// runEnv holds the initialized store, clients, and orchestrator shared
// by the run, batch, and serve commands.
type runEnv struct {
	Store    store.Store
	Loans    *loansystem.Service
	Pipeline *pipeline.Orchestrator
	Board    reviewboard.Client // nil unless the review board is configured
}

// Close releases resources held by the environment.
func (e *runEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured run/baseline database.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = "recon.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DSN, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLoanSystem bootstraps the loan-origination-system session via the
// JWT bearer flow and wraps it in the rate-limited domain service.
func initLoanSystem() (*loansystem.Service, error) {
	pemData, err := os.ReadFile(cfg.LoanSystem.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read loan system JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.LoanSystem.LoginURL,
		Username:       cfg.LoanSystem.Username,
		ConsumerKey:    cfg.LoanSystem.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init loan system session")
	}

	client := loansystem.NewClient(sf,
		loansystem.WithRateLimit(float64(cfg.LoanSystem.RequestsPerSecond), cfg.LoanSystem.Burst))
	breaker := resilience.NewCircuitBreaker(cfg.Pipeline.CircuitConfig())
	objects := loansystem.Objects{
		Loan:  cfg.LoanSystem.LoanObject,
		Fee:   cfg.LoanSystem.FeeObject,
		Order: cfg.LoanSystem.OrderObject,
	}

	return loansystem.NewService(client, objects, breaker), nil
}

// initPipeline validates config for the named command, then sets up the
// store, the loan system session, registries, and every optional client,
// and builds the orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, command string, skip []string) (*runEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	loans, err := initLoanSystem()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := registry.LoadMappings(cfg.Registry.MappingsPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load field mappings")
	}

	var tol *tolerance.Engine
	overrides, err := registry.LoadToleranceTable(cfg.Registry.TolerancePath)
	if err != nil {
		zap.L().Warn("tolerance table not loaded, using standard section classification",
			zap.String("path", cfg.Registry.TolerancePath), zap.Error(err))
		tol = tolerance.New(nil)
	} else {
		tol = tolerance.New(overrides)
	}

	extractor := extraction.NewClient(cfg.Extraction.BaseURL, cfg.Extraction.Key,
		extraction.WithTimeout(cfg.Extraction.Timeout()))

	var adv pipeline.Advisor
	if cfg.Advisor.Enabled() {
		adv = advisor.NewClient(cfg.Advisor.Key, cfg.Advisor.Model, int64(cfg.Advisor.MaxTokens))
		zap.L().Info("correction advisor enabled", zap.String("model", cfg.Advisor.Model))
	} else {
		zap.L().Debug("RECON_ADVISOR_KEY not set, ambiguous mismatches go to review unresolved")
	}

	var inbox pipeline.Inbox
	if cfg.DocInbox.Enabled() {
		host := cfg.DocInbox.Host
		if cfg.DocInbox.Port > 0 {
			host = fmt.Sprintf("%s:%d", cfg.DocInbox.Host, cfg.DocInbox.Port)
		}
		inbox = docinbox.New(docinbox.Options{
			Host:     host,
			User:     cfg.DocInbox.User,
			Password: cfg.DocInbox.Password,
			Root:     cfg.DocInbox.Dir,
			Timeout:  cfg.DocInbox.Timeout(),
		})
		zap.L().Info("partner document inbox enabled", zap.String("host", host))
	}

	var board reviewboard.Client
	if cfg.ReviewBoard.Token != "" {
		board = reviewboard.NewClient(cfg.ReviewBoard.Token)
	}

	zap.L().Info("field mappings loaded", zap.Int("fields", len(reg.Mappings)))

	retry := cfg.Pipeline.RetryConfig()
	orch, err := pipeline.New(pipeline.Config{
		LoanSystem:   loans,
		Registry:     reg,
		Tolerance:    tol,
		Store:        st,
		Inbox:        inbox,
		Extractor:    extractor,
		Advisor:      adv,
		Retry:        &retry,
		StageTimeout: cfg.Pipeline.StageTimeout(),
		Skip:         skip,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &runEnv{
		Store:    st,
		Loans:    loans,
		Pipeline: orch,
		Board:    board,
	}, nil
}
