package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lodgeon/keybridge/internal/bridge"
	"github.com/lodgeon/keybridge/internal/cards"
	"github.com/lodgeon/keybridge/internal/cloudapi"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/monitor"
)

const (
	DefaultPollInterval      = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Worker is the desk-side loop: it keeps the cloud aware this desk is alive
// and drains the hotel's card-issue queue through the local reader, one
// issue at a time. The reader has a single card slot, so there is never
// more than one write in flight.
type Worker struct {
	cloud             *cloudapi.Client
	bridge            *bridge.Client
	monitor           *monitor.Monitor
	pollInterval      time.Duration
	heartbeatInterval time.Duration
}

type WorkerConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

func NewWorker(cloud *cloudapi.Client, bridgeClient *bridge.Client, mon *monitor.Monitor, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Worker{
		cloud:             cloud,
		bridge:            bridgeClient,
		monitor:           mon,
		pollInterval:      cfg.PollInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
	}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	go w.heartbeatLoop(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Issue worker started",
		"poll_interval", w.pollInterval,
		"heartbeat_interval", w.heartbeatInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Issue worker stopped")
			return
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	// Send one immediately so the desk shows online right after startup.
	if err := w.cloud.Heartbeat(ctx); err != nil {
		slog.Warn("Heartbeat failed", "error", err)
	}

	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cloud.Heartbeat(ctx); err != nil {
				slog.Warn("Heartbeat failed", "error", err)
			}
		}
	}
}

// PollOnce runs one claim-execute-report cycle. Nothing is claimed while
// the local hardware is down: an unclaimed issue stays available to other
// desks at the hotel, a claimed one would be stuck here.
func (w *Worker) PollOnce(ctx context.Context) {
	if !w.monitor.Status().Ready() {
		if snap := w.monitor.CheckNow(ctx); !snap.Ready() {
			slog.Debug("Skipping poll, hardware not ready",
				"service_up", snap.ServiceUp,
				"reader_connected", snap.ReaderConnected)
			return
		}
	}

	issue, err := w.cloud.ClaimIssue(ctx)
	if err != nil {
		slog.Warn("Failed to claim issue", "error", err)
		return
	}
	if issue == nil {
		return
	}

	w.Execute(ctx, issue)
}

// Execute programs the card for one claimed issue and reports the outcome.
func (w *Worker) Execute(ctx context.Context, issue *issues.CardIssue) {
	slog.Info("Executing card issue",
		"issue_id", issue.ID,
		"booking_id", issue.BookingID,
		"card_type", issue.CardType)

	var booking cards.BookingData
	if err := json.Unmarshal(issue.Payload, &booking); err != nil {
		w.report(ctx, issue, issues.StatusFailed, "", "malformed issue payload: "+err.Error())
		return
	}

	result, err := w.bridge.WriteCard(ctx, bridge.WriteRequest{
		CardType:   issue.CardType,
		BookingID:  issue.BookingID,
		RoomNumber: booking.RoomNumber,
		GuestID:    booking.GuestID,
		CheckIn:    booking.CheckIn,
		CheckOut:   booking.CheckOut,
		FacilityID: booking.FacilityID,
	})
	if err != nil {
		var writeErr *bridge.WriteError
		if errors.As(err, &writeErr) {
			w.report(ctx, issue, issues.StatusFailed, "", writeErr.Message)
		} else {
			w.report(ctx, issue, issues.StatusFailed, "", "hardware agent error: "+err.Error())
		}
		return
	}

	w.report(ctx, issue, issues.StatusDone, result.CardUID, "")
}

func (w *Worker) report(ctx context.Context, issue *issues.CardIssue, status issues.Status, cardUID, errorMessage string) {
	if err := w.cloud.ReportIssue(ctx, issue.ID, status, cardUID, errorMessage); err != nil {
		// The issue stays in_progress until an operator intervenes; losing
		// the report is still better than double-programming the card.
		slog.Error("Failed to report issue outcome",
			"issue_id", issue.ID,
			"status", status,
			"error", err)
		return
	}
	slog.Info("Card issue reported",
		"issue_id", issue.ID,
		"status", status,
		"card_uid", cardUID)
}
