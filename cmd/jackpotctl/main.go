package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	server  string
	token   string
	output  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "jackpotctl",
		Short:        "Operate a running jackpot engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("JACKPOT_SERVER", "http://127.0.0.1:8080"), "engine base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("JACKPOT_ADMIN_TOKEN"), "admin bearer token")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newRoomsCmd(opts),
		newStateCmd(opts),
		newWinnersCmd(opts),
		newConfigCmd(opts),
		newForcedWinnerCmd(opts),
		newFavoredCmd(opts),
		newActivityCmd(opts),
		newPayoutsCmd(opts),
	)
	return root
}

// call runs one request and prints the result.
func call(cmd *cobra.Command, opts *rootOptions, method, path string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	doc, err := newClient(opts.server, opts.token, opts.timeout).do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return printDoc(cmd.OutOrStdout(), opts.output, doc)
}

func roomPath(room string, parts ...string) string {
	return joinRoom("/api/rooms/", room, parts)
}

func adminPath(room string, parts ...string) string {
	return joinRoom("/api/admin/rooms/", room, parts)
}

func joinRoom(prefix, room string, parts []string) string {
	p := prefix + url.PathEscape(room)
	if len(parts) > 0 {
		p += "/" + strings.Join(parts, "/")
	}
	return p
}

func newRoomsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms with their current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, opts, http.MethodGet, "/api/rooms", nil)
		},
	}
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state ROOM",
		Short: "Show the round a room is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, roomPath(args[0], "state"), nil)
		},
	}
}

func newWinnersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "winners ROOM",
		Short: "Show the winner history of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, roomPath(args[0], "winners"), nil)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the bias configuration of a room",
	}

	get := &cobra.Command{
		Use:   "get ROOM",
		Short: "Print the bias configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, adminPath(args[0], "config"), nil)
		},
	}

	var (
		houseEdge, minWinChance, favorFactor float64
		logging                              bool
	)
	set := &cobra.Command{
		Use:   "set ROOM",
		Short: "Update only the flags that are given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := map[string]any{}
			flags := cmd.Flags()
			if flags.Changed("house-edge") {
				update["house_edge"] = houseEdge
			}
			if flags.Changed("min-win-chance") {
				update["min_win_chance"] = minWinChance
			}
			if flags.Changed("favor-factor") {
				update["favor_factor"] = favorFactor
			}
			if flags.Changed("logging") {
				update["logging"] = logging
			}
			if len(update) == 0 {
				return fmt.Errorf("nothing to update, pass at least one flag")
			}
			return call(cmd, opts, http.MethodPatch, adminPath(args[0], "config"), update)
		},
	}
	set.Flags().Float64Var(&houseEdge, "house-edge", 0, "house edge percent (0-100)")
	set.Flags().Float64Var(&minWinChance, "min-win-chance", 0, "minimum win chance percent (0-100)")
	set.Flags().Float64Var(&favorFactor, "favor-factor", 0, "weight multiplier for favored wallets (>= 1)")
	set.Flags().BoolVar(&logging, "logging", false, "record wallet activity")

	cmd.AddCommand(get, set)
	return cmd
}

func newForcedWinnerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forced-winner",
		Short: "Force the next round's winner",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set ROOM ADDRESS",
			Short: "Force ADDRESS to win the next round it holds a ticket in",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, opts, http.MethodPut, adminPath(args[0], "forced-winner"), map[string]string{"address": args[1]})
			},
		},
		&cobra.Command{
			Use:   "clear ROOM",
			Short: "Remove the forced winner",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, opts, http.MethodDelete, adminPath(args[0], "forced-winner"), nil)
			},
		},
	)
	return cmd
}

func newFavoredCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favored",
		Short: "Manage favored wallets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add ROOM ADDRESS",
			Short: "Favor a wallet",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, opts, http.MethodPost, adminPath(args[0], "favored"), map[string]string{"address": args[1]})
			},
		},
		&cobra.Command{
			Use:   "remove ROOM ADDRESS",
			Short: "Stop favoring a wallet",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, opts, http.MethodDelete, adminPath(args[0], "favored", url.PathEscape(args[1])), nil)
			},
		},
	)
	return cmd
}

func newActivityCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Read or clear the wallet activity log",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list ROOM",
		Short: "Print the most recent entries first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := adminPath(args[0], "activity") + "?limit=" + strconv.Itoa(limit)
			return call(cmd, opts, http.MethodGet, path, nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "max entries, 0 for all")

	clearCmd := &cobra.Command{
		Use:   "clear ROOM",
		Short: "Delete every entry of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodDelete, adminPath(args[0], "activity"), nil)
		},
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}

func newPayoutsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Inspect and retry the payout outbox",
	}

	var status string
	list := &cobra.Command{
		Use:   "list ROOM",
		Short: "Print payout entries, optionally filtered by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := adminPath(args[0], "payouts")
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}
			return call(cmd, opts, http.MethodGet, path, nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "pending, paid, failed or unclaimable")

	retry := &cobra.Command{
		Use:   "retry ROOM ROUND",
		Short: "Re-queue a failed payout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[1], 10, 64); err != nil {
				return fmt.Errorf("round must be a positive integer: %q", args[1])
			}
			return call(cmd, opts, http.MethodPost, adminPath(args[0], "payouts", args[1], "retry"), nil)
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
