package services

import (
	"errors"
	"fmt"
	"os"

	"github.com/MackHatch/etl-studio/config"
	"github.com/MackHatch/etl-studio/db/models"
	"github.com/MackHatch/etl-studio/imports/repositories"
	"github.com/MackHatch/etl-studio/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeadLetterNotifier emails the operations address when a run exhausts its
// retries, attaching an Excel report of whatever row errors the last attempt
// managed to record. Notification is best effort; a mail outage never changes
// run state.
type DeadLetterNotifier struct {
	repo   repositories.ImportRunRepository
	logger *zap.Logger
}

func NewDeadLetterNotifier(repo repositories.ImportRunRepository, logger *zap.Logger) *DeadLetterNotifier {
	return &DeadLetterNotifier{repo: repo, logger: logger}
}

func (n *DeadLetterNotifier) NotifyDeadLettered(run *models.ImportRun, lastError string) {
	recipient := config.GetEnv("ALERTS_EMAIL")
	if recipient == "" {
		n.logger.Warn("ALERTS_EMAIL not set, skipping dead-letter notification",
			zap.String("run_id", run.ID.String()))
		return
	}

	attachmentPath, err := n.BuildErrorReport(run.ID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			n.logger.Error("failed to build error report",
				zap.String("run_id", run.ID.String()), zap.Error(err))
		}
		attachmentPath = ""
	}

	title := fmt.Sprintf("Import run %s dead-lettered after %d attempts", run.ID, run.AttemptCount)
	message := fmt.Sprintf(
		"Import run %s for dataset %s failed permanently and was moved to the dead-letter queue.\n\n"+
			"Attempts: %d\nLast error: %s\n\n"+
			"The run can be retried from the dashboard once the underlying issue is resolved.",
		run.ID, run.DatasetID, run.AttemptCount, lastError)

	if err := utils.SendEmail(recipient, message, title, attachmentPath); err != nil {
		n.logger.Error("failed to send dead-letter notification",
			zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

// BuildErrorReport writes the Excel error report for a run and returns its
// path. os.ErrNotExist means the run recorded no row errors, so there is
// nothing to attach.
func (n *DeadLetterNotifier) BuildErrorReport(runID uuid.UUID) (string, error) {
	rowErrors, err := n.repo.GetRowErrors(runID)
	if err != nil {
		return "", err
	}
	if len(rowErrors) == 0 {
		return "", os.ErrNotExist
	}
	return utils.GenerateErrorReportExcel(runID.String(), rowErrors)
}
