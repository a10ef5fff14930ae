package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker/v2"

	"caneharvest/internal/types"
)

// Breaker defaults used when the caller passes zero values.
const (
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
)

const insertHarvestSQL = `INSERT INTO harvest (
	id, area, production, loss_percentage, lost_tonnage, net_production,
	productivity_per_hour, productivity_per_hectare, alert, recommendation,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const listHarvestsSQL = `SELECT id, area, production, loss_percentage, lost_tonnage,
	net_production, productivity_per_hour, productivity_per_hectare,
	alert, recommendation, created_at
FROM harvest
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`

// BreakerSettings configures the repository's circuit breaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures tolerated before the
	// breaker opens.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before letting a probe
	// request through.
	Timeout time.Duration
}

// HarvestRepository persists enriched harvest records to the harvest table.
type HarvestRepository struct {
	pool    Pool
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewHarvestRepository creates a HarvestRepository backed by pool.
func NewHarvestRepository(pool Pool, settings BreakerSettings, logger *slog.Logger) *HarvestRepository {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = defaultBreakerMaxFailures
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultBreakerTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxFailures := settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "harvest-db",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &HarvestRepository{pool: pool, breaker: cb, logger: logger}
}

// Insert writes h inside a transaction. Any failure rolls the transaction back
// and surfaces as internal_database_error wrapping the cause.
func (r *HarvestRepository) Insert(ctx context.Context, h *types.Harvest) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.insertTx(ctx, h)
	})
	if err != nil {
		types.LoggerFromContext(ctx, r.logger).Error("harvest insert failed",
			slog.String("harvest_id", h.ID),
			slog.String("error", err.Error()),
		)
		return mapDBError("failed to persist harvest", err)
	}
	return nil
}

func (r *HarvestRepository) insertTx(ctx context.Context, h *types.Harvest) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	_, err = tx.Exec(ctx, insertHarvestSQL,
		h.ID,
		h.Area,
		h.Production,
		h.LossPercentage,
		h.LostTonnage,
		h.NetProduction,
		h.ProductivityPerHour,
		h.ProductivityPerHectare,
		h.Alert,
		h.Recommendation,
		h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert harvest: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns one page of stored harvests, newest first, and whether more
// rows follow.
func (r *HarvestRepository) List(ctx context.Context, page types.PageParams) ([]types.StoredHarvest, bool, error) {
	res, err := r.breaker.Execute(func() (any, error) {
		return r.list(ctx, page)
	})
	if err != nil {
		return nil, false, mapDBError("failed to list harvests", err)
	}

	rows := res.([]types.StoredHarvest)
	hasMore := len(rows) > page.PageSize
	if hasMore {
		rows = rows[:page.PageSize]
	}
	return rows, hasMore, nil
}

func (r *HarvestRepository) list(ctx context.Context, page types.PageParams) ([]types.StoredHarvest, error) {
	rows, err := r.pool.Query(ctx, listHarvestsSQL, page.PageSize+1, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("query harvests: %w", err)
	}
	defer rows.Close()

	out := make([]types.StoredHarvest, 0, page.PageSize+1)
	for rows.Next() {
		var (
			h             types.StoredHarvest
			alert, recomm *string
		)
		if err := rows.Scan(
			&h.ID,
			&h.Area,
			&h.Production,
			&h.LossPercentage,
			&h.LostTonnage,
			&h.NetProduction,
			&h.ProductivityPerHour,
			&h.ProductivityPerHectare,
			&alert,
			&recomm,
			&h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan harvest: %w", err)
		}
		if alert != nil {
			h.Alert = *alert
		}
		if recomm != nil {
			h.Recommendation = *recomm
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate harvests: %w", err)
	}
	return out, nil
}

// Ping checks connectivity. It backs the database health probe and shares the
// breaker, so an open breaker reports unhealthy without touching the pool.
func (r *HarvestRepository) Ping(ctx context.Context) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.pool.Ping(ctx)
	})
	if err != nil {
		return mapDBError("database unreachable", err)
	}
	return nil
}

// BreakerState reports the current breaker state.
func (r *HarvestRepository) BreakerState() gobreaker.State {
	return r.breaker.State()
}

func mapDBError(msg string, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeInternalDB, "database temporarily unavailable", err)
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}
