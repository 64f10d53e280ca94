package main

import (
	"log/slog"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
)

var version = "dev"

// --- CLI definitions --- //

type CLI struct {
	Serve       ServeCmd       `cmd:"" help:"Run the jackpot rooms, payout worker and HTTP API."`
	Relay       RelayCmd       `cmd:"" help:"Run the payout relay that holds the house key."`
	History     HistoryCmd     `cmd:"" help:"Print the recent winners of a room."`
	NATSPrinter NATSPrinterCmd `cmd:"" name:"nats-printer" help:"Print jackpot events from NATS."`
}

type ServeCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`
}

type RelayCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Port       int    `help:"Override relay.port." name:"port"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`
}

type HistoryCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Room       string `help:"Room to print. Every room when empty." name:"room"`
	Payouts    bool   `help:"Also print the payout outbox." name:"payouts"`
}

type NATSPrinterCmd struct {
	NATSURL string `help:"NATS server URL." default:"nats://127.0.0.1:4222" name:"nats-url"`
	Subject string `help:"NATS subject to subscribe to." default:"jackpot.events.>" name:"subject"`
	LogFile string `help:"Append events to this file." name:"log"`
}

func (c *ServeCmd) Run() error {
	initLogger(c.Debug)
	return runServe(c.ConfigPath)
}

func (c *RelayCmd) Run() error {
	initLogger(c.Debug)
	return runRelay(c.ConfigPath, c.Port)
}

func (c *HistoryCmd) Run() error {
	initLogger(false)
	return runHistory(c.ConfigPath, c.Room, c.Payouts)
}

func (c *NATSPrinterCmd) Run() error {
	initLogger(false)
	return runNatsPrinter(c.NATSURL, c.Subject, c.LogFile)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("jackpot"),
		kong.Description("Jackpot round settlement engine, payout relay & event printer."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}
