package jackpot

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/samber/lo"
)

// BiasUpdate is a partial update, nil fields are left untouched.
type BiasUpdate struct {
	HouseEdge      *float64  `json:"house_edge,omitempty"`
	MinWinChance   *float64  `json:"min_win_chance,omitempty"`
	FavorFactor    *float64  `json:"favor_factor,omitempty"`
	FavoredWallets *[]string `json:"favored_wallets,omitempty"`
	Logging        *bool     `json:"logging,omitempty"`
}

func (u BiasUpdate) Validate() error {
	if err := validatePercent("house_edge", u.HouseEdge); err != nil {
		return err
	}
	if err := validatePercent("min_win_chance", u.MinWinChance); err != nil {
		return err
	}
	if u.FavorFactor != nil {
		f := *u.FavorFactor
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
			return fmt.Errorf("%w: favor_factor must be >= 1, got %v", ErrConfigValidation, f)
		}
	}
	if u.FavoredWallets != nil {
		for _, w := range *u.FavoredWallets {
			if strings.TrimSpace(w) == "" {
				return fmt.Errorf("%w: favored wallet address is empty", ErrConfigValidation)
			}
		}
	}
	return nil
}

func validatePercent(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 100 {
		return fmt.Errorf("%w: %s must be within [0,100], got %v", ErrConfigValidation, name, *v)
	}
	return nil
}

func (u BiasUpdate) apply(cfg *model.BiasConfig) {
	if u.HouseEdge != nil {
		cfg.HouseEdge = *u.HouseEdge
	}
	if u.MinWinChance != nil {
		cfg.MinWinChance = *u.MinWinChance
	}
	if u.FavorFactor != nil {
		cfg.FavorFactor = *u.FavorFactor
	}
	if u.FavoredWallets != nil {
		cfg.FavoredWallets = lo.Uniq(lo.Map(*u.FavoredWallets, func(w string, _ int) string { return strings.TrimSpace(w) }))
	}
	if u.Logging != nil {
		cfg.Logging = *u.Logging
	}
}

// DefaultBiasConfig seeds a room that has no persisted configuration yet.
func DefaultBiasConfig(d config.BiasDefaults) model.BiasConfig {
	return model.BiasConfig{
		HouseEdge:      lo.FromPtrOr(d.HouseEdge, constant.DefaultHouseEdge),
		MinWinChance:   lo.FromPtrOr(d.MinWinChance, constant.DefaultMinWinChance),
		FavorFactor:    lo.FromPtrOr(d.FavorFactor, constant.DefaultFavorFactor),
		Logging:        lo.FromPtrOr(d.Logging, true),
		FavoredWallets: []string{},
	}
}

// ActivityAdmin is the part of the activity log the admin surface can reset.
type ActivityAdmin interface {
	Clear(ctx context.Context, room string) error
}

// AdminService is the operator control surface. Every mutation goes through the
// room mailbox, so it never lands in the middle of a settlement.
type AdminService struct {
	rooms    *Manager
	activity ActivityAdmin
}

func NewAdminService(rooms *Manager, activity ActivityAdmin) *AdminService {
	return &AdminService{rooms: rooms, activity: activity}
}

func (a *AdminService) GetBiasConfig(ctx context.Context, roomID string) (model.BiasConfig, error) {
	room, err := a.rooms.Room(roomID)
	if err != nil {
		return model.BiasConfig{}, err
	}
	return room.BiasConfig(ctx)
}

func (a *AdminService) UpdateBiasConfig(ctx context.Context, roomID string, u BiasUpdate) (model.BiasConfig, error) {
	if err := u.Validate(); err != nil {
		return model.BiasConfig{}, err
	}
	return a.mutate(ctx, roomID, "update_config", func(cfg *model.BiasConfig) error {
		u.apply(cfg)
		return nil
	})
}

// SetForcedWinner arms a one-shot override for the next settled round.
func (a *AdminService) SetForcedWinner(ctx context.Context, roomID, address string) (model.BiasConfig, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return model.BiasConfig{}, fmt.Errorf("%w: forced winner address is empty", ErrConfigValidation)
	}
	return a.mutate(ctx, roomID, "set_forced_winner", func(cfg *model.BiasConfig) error {
		cfg.ForceWinOnNextRound = true
		cfg.ForcedWinnerAddress = address
		return nil
	})
}

func (a *AdminService) ClearForcedWinner(ctx context.Context, roomID string) (model.BiasConfig, error) {
	return a.mutate(ctx, roomID, "clear_forced_winner", func(cfg *model.BiasConfig) error {
		cfg.ForceWinOnNextRound = false
		cfg.ForcedWinnerAddress = ""
		return nil
	})
}

func (a *AdminService) AddFavoredWallet(ctx context.Context, roomID, address string) (model.BiasConfig, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return model.BiasConfig{}, fmt.Errorf("%w: favored wallet address is empty", ErrConfigValidation)
	}
	return a.mutate(ctx, roomID, "add_favored_wallet", func(cfg *model.BiasConfig) error {
		if !slices.Contains(cfg.FavoredWallets, address) {
			cfg.FavoredWallets = append(cfg.FavoredWallets, address)
		}
		return nil
	})
}

func (a *AdminService) RemoveFavoredWallet(ctx context.Context, roomID, address string) (model.BiasConfig, error) {
	address = strings.TrimSpace(address)
	return a.mutate(ctx, roomID, "remove_favored_wallet", func(cfg *model.BiasConfig) error {
		cfg.FavoredWallets = lo.Without(cfg.FavoredWallets, address)
		return nil
	})
}

func (a *AdminService) ClearActivityLog(ctx context.Context, roomID string) error {
	if _, err := a.rooms.Room(roomID); err != nil {
		return err
	}
	if a.activity == nil {
		return nil
	}
	if err := a.activity.Clear(ctx, roomID); err != nil {
		return err
	}
	logger.Info("Activity log cleared", "room", roomID)
	return nil
}

func (a *AdminService) mutate(ctx context.Context, roomID, op string, fn func(*model.BiasConfig) error) (model.BiasConfig, error) {
	room, err := a.rooms.Room(roomID)
	if err != nil {
		return model.BiasConfig{}, err
	}
	cfg, err := room.MutateBias(ctx, fn)
	if err != nil {
		return model.BiasConfig{}, err
	}
	logger.Info("Bias configuration changed", "room", roomID, "op", op)
	return cfg, nil
}
