// Package handlers contains the HTTP handler implementations for the harvest
// API.
//
// This file implements the harvest handler. It covers:
//   - Create: validate, enrich with metrics and advisory text, persist
//   - List: paginated read of stored harvests, newest first
//   - Route registration
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caneharvest/internal/core"
	"caneharvest/internal/insights"
	"caneharvest/internal/metrics"
	"caneharvest/internal/types"
)

// --- Service Interfaces ---

// HarvestRepo is the relational store for enriched harvests.
type HarvestRepo interface {
	Insert(ctx context.Context, h *types.Harvest) error
	List(ctx context.Context, page types.PageParams) ([]types.StoredHarvest, bool, error)
}

// HistoryAppender appends records to the JSON history log.
type HistoryAppender interface {
	Append(ctx context.Context, record any) error
}

// EventPublisher announces stored harvests to downstream consumers.
type EventPublisher interface {
	PublishCreated(ctx context.Context, h *types.Harvest) error
}

// InsightEngine runs the advisory rules over an enriched record.
type InsightEngine interface {
	Evaluate(ctx context.Context, f types.Fields) insights.Report
}

// HarvestMetrics records business metrics for the create flow.
type HarvestMetrics interface {
	RecordEvaluatorFailure(ctx context.Context, evaluator string)
	RecordHarvestCreated(ctx context.Context)
}

// --- Request Models ---

// CreateHarvestRequest is the request body for POST /harvest. Fields are
// pointers so an absent value is distinguishable from zero.
type CreateHarvestRequest struct {
	Area               *float64    `json:"area" validate:"required,gt=0"`
	Production         *float64    `json:"production" validate:"required,gte=0"`
	LossPercentage     *float64    `json:"loss_percentage" validate:"required,gte=0,lte=100"`
	DurationHours      *float64    `json:"duration_hours" validate:"required,gt=0"`
	HarvestMethod      *string     `json:"harvest_method" validate:"required,oneof=manual mechanical"`
	MoisturePercentage *float64    `json:"moisture_percentage" validate:"required,gte=0,lte=100"`
	HarvestDate        *types.Date `json:"harvest_date" validate:"required,not_future"`
	OperatorID         *string     `json:"operator_id" validate:"required,trimmed_nonempty,max=64"`
	EquipmentID        *string     `json:"equipment_id" validate:"required,trimmed_nonempty,max=64"`
	Variety            *string     `json:"variety" validate:"required,trimmed_nonempty,max=64"`
	AmbientTemperature *float64    `json:"ambient_temperature" validate:"required"`
	BrixPercentage     *float64    `json:"brix_percentage" validate:"required,gte=0,lte=30"`
}

// Normalize trims surrounding whitespace from the identifier fields.
func (req *CreateHarvestRequest) Normalize() {
	for _, s := range []*string{req.OperatorID, req.EquipmentID, req.Variety} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
}

// Record converts a validated request into a HarvestRecord. It must only be
// called after validation succeeded.
func (req *CreateHarvestRequest) Record() types.HarvestRecord {
	return types.HarvestRecord{
		Area:               *req.Area,
		Production:         *req.Production,
		LossPercentage:     *req.LossPercentage,
		DurationHours:      *req.DurationHours,
		HarvestMethod:      types.HarvestMethod(*req.HarvestMethod),
		MoisturePercentage: *req.MoisturePercentage,
		HarvestDate:        *req.HarvestDate,
		OperatorID:         *req.OperatorID,
		EquipmentID:        *req.EquipmentID,
		Variety:            *req.Variety,
		AmbientTemperature: *req.AmbientTemperature,
		BrixPercentage:     *req.BrixPercentage,
	}
}

// --- Handler ---

// HarvestHandler serves the harvest endpoints.
type HarvestHandler struct {
	repo       HarvestRepo
	history    HistoryAppender
	publisher  EventPublisher
	engine     InsightEngine
	calculator *metrics.Calculator
	validator  *core.Validator
	logger     *slog.Logger
	metrics    HarvestMetrics

	loc *time.Location
	now func() time.Time
}

// HarvestHandlerOption customizes a HarvestHandler.
type HarvestHandlerOption func(*HarvestHandler)

// WithLocation sets the timezone used for created_at timestamps.
func WithLocation(loc *time.Location) HarvestHandlerOption {
	return func(h *HarvestHandler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) HarvestHandlerOption {
	return func(h *HarvestHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHarvestHandler creates a HarvestHandler. history, publisher, and m are
// optional.
func NewHarvestHandler(
	repo HarvestRepo,
	history HistoryAppender,
	publisher EventPublisher,
	engine InsightEngine,
	calc *metrics.Calculator,
	v *core.Validator,
	l *slog.Logger,
	m HarvestMetrics,
	opts ...HarvestHandlerOption,
) *HarvestHandler {
	if l == nil {
		l = slog.Default()
	}
	if calc == nil {
		calc, _ = metrics.NewCalculator(metrics.DefaultPrecision)
	}
	h := &HarvestHandler{
		repo:       repo,
		history:    history,
		publisher:  publisher,
		engine:     engine,
		calculator: calc,
		validator:  v,
		logger:     l,
		metrics:    m,
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the harvest routes on the provided chi.Router.
func (h *HarvestHandler) RegisterRoutes(r chi.Router) {
	r.Post("/harvest", h.Create)
	r.Get("/harvests", h.List)
}

// --- Handler Methods ---

// Create handles POST /harvest.
//
//  1. Decode the body and trim identifier fields.
//  2. Validate types, ranges, enum, and date (422 on failure).
//  3. Derive metrics (INVALID_INPUT -> 400).
//  4. Run the advisory rules; failed rules are logged and counted.
//  5. Assign id and created_at.
//  6. Append to the JSON history (failure is logged, not fatal).
//  7. Insert into the database (failure -> 500).
//  8. Publish the created event (best effort).
//  9. Return 201 Created with the enriched record.
func (h *HarvestHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := types.LoggerFromContext(ctx, h.logger)

	var req CreateHarvestRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Normalize()

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	record := req.Record()
	fields, derived, err := h.calculator.Enrich(record.Fields())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	report := h.engine.Evaluate(ctx, fields)
	if h.metrics != nil {
		for _, failed := range report.Failures() {
			h.metrics.RecordEvaluatorFailure(ctx, failed.Evaluator)
		}
	}

	harvest := &types.Harvest{
		ID:             "hv_" + uuid.New().String(),
		HarvestRecord:  record,
		DerivedMetrics: derived,
		Advisory:       report.Advisory,
		CreatedAt:      h.now().In(h.loc),
	}

	if h.history != nil {
		if err := h.history.Append(ctx, harvest); err != nil {
			logger.WarnContext(ctx, "history append failed",
				"harvest_id", harvest.ID,
				"error", err,
			)
		}
	}

	if err := h.repo.Insert(ctx, harvest); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishCreated(ctx, harvest); err != nil {
			logger.WarnContext(ctx, "harvest event publish failed",
				"harvest_id", harvest.ID,
				"error", err,
			)
		}
	}
	if h.metrics != nil {
		h.metrics.RecordHarvestCreated(ctx)
	}

	logger.InfoContext(ctx, "harvest created",
		"harvest_id", harvest.ID,
		"alert", harvest.Alert != "",
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: harvest})
}

// List handles GET /harvests?page=1&page_size=50.
func (h *HarvestHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rows, hasMore, err := h.repo.List(r.Context(), page)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.StoredHarvest{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: rows,
		Meta: &types.ResponseMeta{
			Pagination: &types.PageInfo{
				Page:     page.Page,
				PageSize: page.PageSize,
				HasMore:  hasMore,
			},
		},
	})
}

// --- Helper Functions ---

// parsePageParams reads page and page_size, applying defaults when absent.
func parsePageParams(r *http.Request) (types.PageParams, error) {
	q := r.URL.Query()
	p := types.PageParams{Page: types.DefaultPage, PageSize: types.DefaultPageSize}

	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, paginationError("page must be an integer of at least 1")
		}
		p.Page = n
	}

	if s := q.Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > types.MaxPageSize {
			return p, paginationError("page_size must be an integer between 1 and " + strconv.Itoa(types.MaxPageSize))
		}
		p.PageSize = n
	}

	return p, nil
}

func paginationError(msg string) error {
	return types.NewAppError(types.ErrCodeValidationInvalidPagination, msg, nil)
}
