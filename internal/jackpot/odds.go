package jackpot

import (
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Selection is the outcome of the odds calculator for one round.
type Selection struct {
	Ticket model.Ticket
	Index  int
	// Chance is the displayed win chance, computed from unadjusted stakes.
	Chance float64
	Forced bool
}

// Weights returns the selection weight of each ticket: its amount, multiplied by
// FavorFactor when the wallet is favored.
func Weights(tickets []model.Ticket, cfg model.BiasConfig) []decimal.Decimal {
	factor := decimal.NewFromFloat(cfg.FavorFactor)
	if factor.LessThan(decimal.NewFromInt(1)) {
		factor = decimal.NewFromInt(1)
	}
	favored := lo.SliceToMap(cfg.FavoredWallets, func(w string) (string, struct{}) { return w, struct{}{} })

	return lo.Map(tickets, func(t model.Ticket, _ int) decimal.Decimal {
		if _, ok := favored[t.WalletAddress]; ok && t.WalletAddress != "" {
			return t.Amount.Mul(factor)
		}
		return t.Amount
	})
}

// SelectWinner picks the winning ticket. u is a uniform draw in [0,1).
// It returns false only when there are no tickets.
func SelectWinner(tickets []model.Ticket, cfg model.BiasConfig, u float64) (Selection, bool) {
	if len(tickets) == 0 {
		return Selection{}, false
	}

	if cfg.ForceWinOnNextRound && cfg.ForcedWinnerAddress != "" {
		if _, idx, ok := lo.FindIndexOf(tickets, func(t model.Ticket) bool {
			return t.WalletAddress == cfg.ForcedWinnerAddress
		}); ok {
			return Selection{Ticket: tickets[idx], Index: idx, Chance: DisplayChance(tickets, idx), Forced: true}, true
		}
	}

	if len(tickets) == 1 {
		return Selection{Ticket: tickets[0], Index: 0, Chance: 100}, true
	}

	weights := Weights(tickets, cfg)
	total := decimal.Sum(decimal.Zero, weights...)
	target := decimal.NewFromFloat(clampUnit(u)).Mul(total)

	idx := len(tickets) - 1
	cumulative := decimal.Zero
	for i, w := range weights {
		cumulative = cumulative.Add(w)
		if cumulative.GreaterThan(target) {
			idx = i
			break
		}
	}
	return Selection{Ticket: tickets[idx], Index: idx, Chance: DisplayChance(tickets, idx)}, true
}

// DisplayChance is ticket idx's share of the unadjusted stakes in percent, one decimal.
// It deliberately ignores favor weighting.
func DisplayChance(tickets []model.Ticket, idx int) float64 {
	if len(tickets) == 1 {
		return 100
	}
	total := decimal.Sum(decimal.Zero, lo.Map(tickets, func(t model.Ticket, _ int) decimal.Decimal { return t.Amount })...)
	if !total.IsPositive() {
		return 0
	}
	return tickets[idx].Amount.Div(total).Mul(hundred).Round(constant.ChanceDecimals).InexactFloat64()
}

// PayoutAmount is pot * (1 - houseEdge/100) with houseEdge clamped to [0,100],
// truncated to lamport precision so it never exceeds the pot.
func PayoutAmount(pot decimal.Decimal, houseEdge float64) decimal.Decimal {
	edge := decimal.NewFromFloat(ClampPercent(houseEdge))
	keep := decimal.NewFromInt(1).Sub(edge.Div(hundred))
	return pot.Mul(keep).Truncate(constant.SOLDecimals)
}

func ClampPercent(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func clampUnit(u float64) float64 {
	if u != u || u < 0 {
		return 0
	}
	if u >= 1 {
		return 0.9999999999999999
	}
	return u
}
