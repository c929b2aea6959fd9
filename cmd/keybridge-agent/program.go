package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lodgeon/keybridge/internal/bridge"
	"github.com/lodgeon/keybridge/internal/cards"
	"github.com/lodgeon/keybridge/internal/cloudapi"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/orchestrator"
)

// runProgram is the attended path: a receptionist runs the full card
// sequence for a guest at this desk, card by card, while the worker loop
// stays out of the way.
func runProgram(args []string) error {
	fs := flag.NewFlagSet("program", flag.ExitOnError)
	bookingID := fs.String("booking", "", "Booking ID")
	room := fs.String("room", "", "Room number")
	guest := fs.String("guest", "", "Guest ID")
	checkIn := fs.String("check-in", "", "Check-in date (RFC 3339)")
	checkOut := fs.String("check-out", "", "Check-out date (RFC 3339)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *bookingID == "" {
		return fmt.Errorf("--booking is required")
	}
	if *room == "" {
		return fmt.Errorf("--room is required")
	}

	InitConfig()

	if config.Server.AgentID == "" || config.Server.Token == "" {
		return fmt.Errorf("agent is not enrolled; run 'keybridge-agent enroll' first")
	}

	booking := cards.BookingData{
		BookingID:  *bookingID,
		RoomNumber: *room,
		GuestID:    *guest,
	}
	var err error
	if *checkIn != "" {
		if booking.CheckIn, err = time.Parse(time.RFC3339, *checkIn); err != nil {
			return fmt.Errorf("invalid --check-in: %w", err)
		}
	}
	if *checkOut != "" {
		if booking.CheckOut, err = time.Parse(time.RFC3339, *checkOut); err != nil {
			return fmt.Errorf("invalid --check-out: %w", err)
		}
	}

	bridgeClient := bridge.NewClient(config.Bridge.URL)
	cloudClient := cloudapi.NewClient(config.Server.URL, config.Server.AgentID, config.Server.Token)

	ready := func(ctx context.Context) bool {
		return bridgeClient.CheckServiceStatus(ctx) &&
			bridgeClient.GetReaderStatus(ctx).Connected
	}
	orch := orchestrator.New(bridgeClient, ready)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\nStopping after the current card...")
		cancel()
	}()

	// Audit writes outlive a Ctrl-C: the cards are physically written either way.
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		consumeEvents(context.WithoutCancel(ctx), cloudClient, *bookingID, orch.Events())
	}()

	fmt.Printf("Programming %d cards for booking %s (room %s)\n",
		cards.SequenceLength, *bookingID, *room)

	result, err := orch.Run(ctx, booking)
	<-eventsDone
	if err != nil {
		return err
	}

	fmt.Println()
	for _, cs := range result.Results {
		switch cs.Status {
		case cards.StatusSuccess:
			fmt.Printf("  %-15s ok   (uid %s)\n", cs.CardType, cs.CardUID)
		case cards.StatusError:
			fmt.Printf("  %-15s FAIL %s\n", cs.CardType, cs.Error)
		default:
			fmt.Printf("  %-15s skipped\n", cs.CardType)
		}
	}
	fmt.Printf("Outcome: %s (%d/%d cards)\n",
		result.Outcome(), result.CompletedCards, cards.SequenceLength)

	if result.Outcome() == cards.OutcomeTotalFailure {
		os.Exit(1)
	}
	return nil
}

// consumeEvents narrates run progress and pushes terminal card outcomes to
// the cloud audit log. Audit failures are logged, never fatal: the guest is
// standing at the desk and the cards are already written.
func consumeEvents(ctx context.Context, cloud *cloudapi.Client, bookingID string, events <-chan orchestrator.Event) {
	for ev := range events {
		switch ev.Status {
		case cards.StatusWaiting:
			fmt.Printf("[%3.0f%%] insert card %d/%d: %s\n",
				ev.Percent, ev.Index+1, ev.Total, ev.CardType)
		case cards.StatusProgramming:
			fmt.Printf("[%3.0f%%] writing %s...\n", ev.Percent, ev.CardType)
		case cards.StatusSuccess, cards.StatusError:
			fmt.Printf("[%3.0f%%] %s: %s\n", ev.Percent, ev.CardType, ev.Status)
			entry := issues.ProgramLogEntry{
				BookingID: bookingID,
				CardType:  ev.CardType,
				Status:    ev.Status,
			}
			if ev.State != nil {
				entry.CardUID = ev.State.CardUID
				entry.ErrorMessage = ev.State.Error
			}
			if err := cloud.RecordProgramLog(ctx, entry); err != nil {
				slog.Warn("Failed to record program log entry",
					"booking_id", bookingID,
					"card_type", ev.CardType,
					"error", err)
			}
		}
	}
}
