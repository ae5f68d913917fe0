package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/syrax68/gestion-pieces-sub001/internal/alerts"
)

type fakeAlertRepo struct {
	lowStock map[int64][]alerts.LowStockItem
}

func (f *fakeAlertRepo) BoutiqueIDs(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.lowStock))
	for id := range f.lowStock {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeAlertRepo) ListLowStock(_ context.Context, boutiqueID int64) ([]alerts.LowStockItem, error) {
	return f.lowStock[boutiqueID], nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []SendEmailPayload
}

func (f *fakeMailer) EnqueueSendEmail(_ context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return &asynq.TaskInfo{}, nil
}

type fakeBumper struct {
	bumps int
}

func (f *fakeBumper) Bump(_ context.Context) error {
	f.bumps++
	return nil
}

func scanTask(t *testing.T) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(StockAlertScanPayload{ScheduledFor: time.Now().UTC()})
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeStockAlertScan, body)
}

func TestHandleScanNotifiesPerBoutique(t *testing.T) {
	repo := &fakeAlertRepo{lowStock: map[int64][]alerts.LowStockItem{
		1: {{PartID: 10, Reference: "PLQ-AV-001", Name: "Plaquettes avant", Stock: 1, StockMin: 2, Deficit: 1}},
		2: {},
		3: {{PartID: 11, Reference: "FLT-HLE-002", Name: "Filtre a huile", Stock: 0, StockMin: 3, Deficit: 3}},
	}}
	mailer := &fakeMailer{}
	bumper := &fakeBumper{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scanner := NewStockAlertScanner(repo, mailer, bumper, "stock@atelier.mg", logger)

	require.NoError(t, scanner.HandleScan(context.Background(), scanTask(t)))

	// One email per boutique that has low stock, none for the healthy one.
	require.Len(t, mailer.sent, 2)
	require.Equal(t, 1, bumper.bumps)
	for _, mail := range mailer.sent {
		require.Equal(t, "stock@atelier.mg", mail.To)
		require.Contains(t, mail.Body, "seuil")
	}
}

func TestHandleScanSkipsMalformedPayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scanner := NewStockAlertScanner(&fakeAlertRepo{}, nil, nil, "", logger)

	err := scanner.HandleScan(context.Background(), asynq.NewTask(TaskTypeStockAlertScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
