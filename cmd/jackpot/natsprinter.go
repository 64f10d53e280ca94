package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/events"
	"github.com/nats-io/nats.go"
)

// runNatsPrinter tails jackpot events with a core subscription, so it sees
// live traffic only and never creates a durable consumer on the stream.
func runNatsPrinter(natsURL, subject, logFile string) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	_, err = nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev events.JackpotEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Error("Unmarshal error", "subject", msg.Subject, "err", err)
			return
		}
		fmt.Fprintf(out, "[%s] room=%s round=%d type=%s data=%s\n",
			msg.Subject, ev.Room, ev.Round, ev.Type, compactData(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	logger.Info("Subscribed to", "subject", subject, "url", natsURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

// compactData re-extracts the raw data field so payloads print as JSON
// instead of Go map syntax.
func compactData(raw []byte) string {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Data) == 0 {
		return "{}"
	}
	return string(env.Data)
}
