package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/syrax68/gestion-pieces-sub001/internal/alerts"
)

const (
	// TaskTypeStockAlertScan triggers the periodic low stock sweep.
	TaskTypeStockAlertScan = "alerts:scan"

	scanConcurrency = 4
)

// StockAlertScanPayload carries scheduling metadata.
type StockAlertScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockAlertScanTask constructs an Asynq task for the low stock sweep.
func NewStockAlertScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockAlertScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStockAlertScan, body, asynq.Queue(QueueDefault)), nil
}

// AlertRepository is the read surface the scanner needs.
type AlertRepository interface {
	BoutiqueIDs(ctx context.Context) ([]int64, error)
	ListLowStock(ctx context.Context, boutiqueID int64) ([]alerts.LowStockItem, error)
}

// EmailEnqueuer pushes notification emails onto the queue.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// CacheInvalidator bumps the alerts cache after a sweep.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// StockAlertScanner sweeps every boutique for parts at or under their
// reorder threshold and notifies the back office.
type StockAlertScanner struct {
	repo      AlertRepository
	mailer    EmailEnqueuer
	cache     CacheInvalidator
	recipient string
	logger    *slog.Logger
}

// NewStockAlertScanner constructs the scanner.
func NewStockAlertScanner(repo AlertRepository, mailer EmailEnqueuer, cache CacheInvalidator, recipient string, logger *slog.Logger) *StockAlertScanner {
	return &StockAlertScanner{repo: repo, mailer: mailer, cache: cache, recipient: recipient, logger: logger}
}

// HandleScan processes TaskTypeStockAlertScan tasks. Boutiques are scanned
// in parallel; one boutique failing aborts the sweep so the task retries.
func (s *StockAlertScanner) HandleScan(ctx context.Context, t *asynq.Task) error {
	var payload StockAlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	boutiques, err := s.repo.BoutiqueIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, boutiqueID := range boutiques {
		g.Go(func() error {
			items, err := s.repo.ListLowStock(ctx, boutiqueID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return nil
			}
			s.logger.Info("low stock detected",
				slog.Int64("boutique_id", boutiqueID),
				slog.Int("parts", len(items)))
			if s.mailer == nil || s.recipient == "" {
				return nil
			}
			_, err = s.mailer.EnqueueSendEmail(ctx, SendEmailPayload{
				To:      s.recipient,
				Subject: fmt.Sprintf("Alerte stock bas boutique %d (%d pieces)", boutiqueID, len(items)),
				Body:    formatAlertBody(items),
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("alerts cache bump failed", slog.Any("error", err))
		}
	}
	return nil
}

func formatAlertBody(items []alerts.LowStockItem) string {
	body := "Pieces sous le seuil de reapprovisionnement:\n"
	for _, item := range items {
		body += fmt.Sprintf("- %s %s: stock %d / seuil %d\n", item.Reference, item.Name, item.Stock, item.StockMin)
	}
	return body
}
