package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/kvstore"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
	"github.com/fystack/jackpot-engine/pkg/store/roomstore"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorCyan  = "\033[36m"
)

// runHistory reads the store directly. Badger holds a directory lock, so stop
// the engine first or point the config at a consul store.
func runHistory(configPath, room string, withPayouts bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rooms := cfg.Rooms.Names()
	if room != "" {
		if _, err := cfg.Rooms.Get(room); err != nil {
			return err
		}
		rooms = []string{room}
	}

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return fmt.Errorf("open kvstore: %w", err)
	}
	defer kv.Close()

	store := roomstore.NewRoomStore(kv)
	payouts := payoutstore.NewPayoutStore(kv)

	for _, name := range rooms {
		winners, err := store.GetWinners(name)
		if err != nil {
			return fmt.Errorf("room %s: %w", name, err)
		}
		last, err := store.GetLastRound(name)
		if err != nil {
			return fmt.Errorf("room %s: %w", name, err)
		}

		fmt.Printf("%s%s%s%s  last round %d, %d winners\n", colorBold, colorCyan, name, colorReset, last, len(winners))
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUND\tWINNER\tWALLET\tPOT\tCHANCE\tPAYOUT\tTX\tTIME")
		for _, w := range winners {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f%%\t%s\t%s\t%s\n",
				w.RoundID, w.Username, dash(w.WalletAddress), w.Pot.StringFixed(3),
				w.Chance, w.PayoutStatus, dash(w.TxSignature), w.Timestamp.Format(time.RFC3339))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if withPayouts {
			list, err := payouts.List(name)
			if err != nil {
				return fmt.Errorf("room %s: %w", name, err)
			}
			fmt.Printf("\n%spayout outbox%s\n", colorBold, colorReset)
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROUND\tDESTINATION\tAMOUNT\tSTATUS\tATTEMPTS\tLAST ERROR")
			for _, p := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
					p.RoundID, dash(p.Destination), p.Amount.String(), p.Status, p.Attempts, dash(p.LastError))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		fmt.Println()
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
