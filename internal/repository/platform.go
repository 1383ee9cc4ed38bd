package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/store"
)

// PlatformRepository handles the singleton platform config row and the
// approved asset list.
type PlatformRepository struct {
	tx pgx.Tx
}

// Get loads the platform config. Returns store.ErrPlatformNotInitialized
// before the first Save.
func (r *PlatformRepository) Get(ctx context.Context) (*model.PlatformConfig, error) {
	const query = `
		SELECT admin, upgrade_authority, platform_wallet, charity_wallet,
			platform_fee_bps, max_host_fee_bps, max_prize_pool_bps, min_charity_bps,
			paused, updated_at
		FROM platform_config
		WHERE id = 1
	`
	var (
		cfg                                     model.PlatformConfig
		admin, upgrade, platformWallet, charity string
		platformBps, hostBps, prizeBps, minBps  int16
	)
	err := r.tx.QueryRow(ctx, query).Scan(
		&admin, &upgrade, &platformWallet, &charity,
		&platformBps, &hostBps, &prizeBps, &minBps,
		&cfg.Paused, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPlatformNotInitialized
		}
		return nil, fmt.Errorf("failed to get platform config: %w", err)
	}
	cfg.Admin = model.Address(admin)
	cfg.UpgradeAuthority = model.Address(upgrade)
	cfg.PlatformWallet = model.Address(platformWallet)
	cfg.CharityWallet = model.Address(charity)
	cfg.Policy = model.FeePolicy{
		PlatformFeeBps:  uint16(platformBps),
		MaxHostFeeBps:   uint16(hostBps),
		MaxPrizePoolBps: uint16(prizeBps),
		MinCharityBps:   uint16(minBps),
	}

	const assetsQuery = `SELECT asset_type FROM approved_assets ORDER BY position ASC`
	rows, err := r.tx.Query(ctx, assetsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved assets: %w", err)
	}
	assets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan approved assets: %w", err)
	}
	for _, a := range assets {
		cfg.ApprovedAssets = append(cfg.ApprovedAssets, model.AssetType(a))
	}

	return &cfg, nil
}

// Save upserts the config row and replaces the approved asset list.
func (r *PlatformRepository) Save(ctx context.Context, cfg *model.PlatformConfig) error {
	const query = `
		INSERT INTO platform_config (id, admin, upgrade_authority, platform_wallet, charity_wallet,
			platform_fee_bps, max_host_fee_bps, max_prize_pool_bps, min_charity_bps, paused, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			admin = EXCLUDED.admin,
			upgrade_authority = EXCLUDED.upgrade_authority,
			platform_wallet = EXCLUDED.platform_wallet,
			charity_wallet = EXCLUDED.charity_wallet,
			platform_fee_bps = EXCLUDED.platform_fee_bps,
			max_host_fee_bps = EXCLUDED.max_host_fee_bps,
			max_prize_pool_bps = EXCLUDED.max_prize_pool_bps,
			min_charity_bps = EXCLUDED.min_charity_bps,
			paused = EXCLUDED.paused,
			updated_at = NOW()
	`
	_, err := r.tx.Exec(ctx, query,
		string(cfg.Admin),
		string(cfg.UpgradeAuthority),
		string(cfg.PlatformWallet),
		string(cfg.CharityWallet),
		int16(cfg.Policy.PlatformFeeBps),
		int16(cfg.Policy.MaxHostFeeBps),
		int16(cfg.Policy.MaxPrizePoolBps),
		int16(cfg.Policy.MinCharityBps),
		cfg.Paused,
	)
	if err != nil {
		return fmt.Errorf("failed to save platform config: %w", err)
	}

	if _, err := r.tx.Exec(ctx, `DELETE FROM approved_assets`); err != nil {
		return fmt.Errorf("failed to clear approved assets: %w", err)
	}

	const insertAssets = `
		INSERT INTO approved_assets (asset_type, position)
		SELECT a, ord FROM unnest($1::text[]) WITH ORDINALITY AS t(a, ord)
	`
	assets := make([]string, len(cfg.ApprovedAssets))
	for i, a := range cfg.ApprovedAssets {
		assets[i] = string(a)
	}
	if _, err := r.tx.Exec(ctx, insertAssets, assets); err != nil {
		return fmt.Errorf("failed to save approved assets: %w", err)
	}
	return nil
}
