// Package reconciler owns bank statement reconciliation above the matcher.
//
// It imports statements, keeps reconciliation sessions, tracks outstanding
// ledger transactions and appends the audit trail:
//   - Importer: statement file to persisted statement and items, atomically
//   - SessionManager: start, refresh, complete and abandon reconciliations
//     and derive their discrepancy
//   - OutstandingTracker: ledger transactions not yet seen on a statement
//   - AuditLog: append-only record of every state change
//   - Service: wires all of the above and the auto-matcher around one store
//   - ReconciliationOrchestrator: runs import, auto-match and session start
//     as one pipeline with progress callbacks
//
// Example usage:
//
//	service, err := reconciler.NewService(store, reconciler.DefaultConfig(), bus)
//	if err != nil {
//		return err
//	}
//	orchestrator, _ := reconciler.NewReconciliationOrchestrator(service)
//	orchestrator.AddProgressCallback(func(p *reconciler.ReconciliationProgress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := orchestrator.Process(ctx, file, &reconciler.ProcessRequest{
//		Import:    reconciler.ImportRequest{AccountID: "checking", FileName: "march.csv"},
//		AutoMatch: true,
//		Start:     true,
//	})
package reconciler

import (
	"context"
	"io"
	"sync"
	"time"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// ReconciliationOrchestrator runs the statement pipeline end to end:
//  1. import the statement file
//  2. auto-match its items
//  3. start a reconciliation and compute its discrepancy
type ReconciliationOrchestrator struct {
	service *Service
	logger  logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *ReconciliationProgress
	progressMutex     sync.Mutex
}

// ReconciliationProgress tracks the progress of a pipeline run
type ReconciliationProgress struct {
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	ItemsImported int `json:"items_imported"`
	ItemsMatched  int `json:"items_matched"`

	Warnings []string `json:"warnings,omitempty"`
}

// ProgressCallback is called to report pipeline progress
type ProgressCallback func(*ReconciliationProgress)

// ProcessRequest selects the pipeline steps to run after the import
type ProcessRequest struct {
	Import    ImportRequest
	AutoMatch bool
	Start     bool
}

// ProcessResult contains everything the pipeline produced
type ProcessResult struct {
	Import         *ImportResult              `json:"import"`
	Run            *matcher.RunResult         `json:"run,omitempty"`
	Reconciliation *models.BankReconciliation `json:"reconciliation,omitempty"`
	Discrepancy    *Discrepancy               `json:"discrepancy,omitempty"`
	Summary        *StatusSummary             `json:"summary"`
	Duration       time.Duration              `json:"duration"`
}

const pipelineSteps = 4

// NewReconciliationOrchestrator creates a new reconciliation orchestrator
func NewReconciliationOrchestrator(service *Service) (*ReconciliationOrchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"reconciliation_service",
			nil,
			nil,
		).WithSuggestion("Provide a valid Service instance")
	}

	return &ReconciliationOrchestrator{
		service:         service,
		logger:          logger.GetGlobalLogger().WithComponent("reconciliation_orchestrator"),
		currentProgress: &ReconciliationProgress{TotalSteps: pipelineSteps},
	}, nil
}

// AddProgressCallback adds a progress callback function
func (ro *ReconciliationOrchestrator) AddProgressCallback(callback ProgressCallback) {
	ro.progressCallbacks = append(ro.progressCallbacks, callback)
}

// Process imports a statement from r and runs the requested steps. A failing
// step stops the pipeline; the partial result is returned with the error.
func (ro *ReconciliationOrchestrator) Process(ctx context.Context, r io.Reader, request *ProcessRequest) (*ProcessResult, error) {
	if request == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "process_request", nil, nil)
	}

	ro.initializeProgress()
	startTime := time.Now()
	result := &ProcessResult{}
	defer func() {
		result.Duration = time.Since(startTime)
	}()

	ro.logger.WithFields(logger.Fields{
		"file":       request.Import.FileName,
		"account_id": request.Import.AccountID,
		"auto_match": request.AutoMatch,
		"start":      request.Start,
	}).Info("Starting reconciliation pipeline")

	ro.updateProgress("Importing statement", 0, 0)
	imported, err := ro.service.Import(ctx, r, &request.Import)
	if err != nil {
		return result, err
	}
	result.Import = imported
	stmtID := imported.Statement.ID
	ro.withProgress(func(p *ReconciliationProgress) {
		p.ItemsImported = len(imported.Items)
		p.Warnings = append(p.Warnings, imported.Warnings...)
	})

	ro.updateProgress("Auto-matching items", 1, time.Since(startTime))
	if request.AutoMatch {
		run, err := ro.service.AutoMatch(ctx, stmtID)
		if err != nil {
			return result, err
		}
		result.Run = run
		ro.withProgress(func(p *ReconciliationProgress) { p.ItemsMatched = run.Matched })
	}

	ro.updateProgress("Starting reconciliation", 2, time.Since(startTime))
	if request.Start {
		rec, err := ro.service.Sessions().Start(ctx, request.Import.AccountID, stmtID)
		if err != nil {
			return result, err
		}
		result.Reconciliation = rec

		if result.Discrepancy, err = ro.service.Sessions().CalculateDiscrepancy(ctx, rec.ID); err != nil {
			return result, err
		}
	}

	ro.updateProgress("Summarizing", 3, time.Since(startTime))
	if result.Summary, err = ro.service.StatusSummary(ctx, stmtID); err != nil {
		return result, err
	}

	ro.updateProgress("Completed", pipelineSteps, time.Since(startTime))
	ro.logger.WithFields(logger.Fields{
		"statement_id": stmtID,
		"summary":      result.Summary.String(),
		"elapsed_time": time.Since(startTime),
	}).Info("Reconciliation pipeline completed")

	return result, nil
}

// Progress returns a snapshot of the current progress
func (ro *ReconciliationOrchestrator) Progress() ReconciliationProgress {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	snapshot := *ro.currentProgress
	snapshot.Warnings = append([]string(nil), ro.currentProgress.Warnings...)
	return snapshot
}

func (ro *ReconciliationOrchestrator) initializeProgress() {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	ro.currentProgress = &ReconciliationProgress{
		TotalSteps: pipelineSteps,
		StartTime:  time.Now(),
	}
}

func (ro *ReconciliationOrchestrator) withProgress(fn func(*ReconciliationProgress)) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()
	fn(ro.currentProgress)
}

func (ro *ReconciliationOrchestrator) updateProgress(step string, completed int, elapsed time.Duration) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	ro.currentProgress.CurrentStep = step
	ro.currentProgress.CompletedSteps = completed
	ro.currentProgress.ElapsedTime = elapsed
	ro.currentProgress.PercentComplete = float64(completed) / float64(ro.currentProgress.TotalSteps) * 100

	if completed > 0 && completed < ro.currentProgress.TotalSteps {
		avgTimePerStep := elapsed / time.Duration(completed)
		remainingSteps := ro.currentProgress.TotalSteps - completed
		ro.currentProgress.EstimatedRemaining = avgTimePerStep * time.Duration(remainingSteps)
	} else {
		ro.currentProgress.EstimatedRemaining = 0
	}

	for _, callback := range ro.progressCallbacks {
		callback(ro.currentProgress)
	}
}
