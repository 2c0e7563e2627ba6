package handlers

import (
	"github.com/amirphl/freightdesk/app/dto"
	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/amirphl/freightdesk/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// RateHandlerInterface defines the rate lookup endpoints.
type RateHandlerInterface interface {
	ResolveRate(c fiber.Ctx) error
}

type RateHandler struct {
	resolver  businessflow.RateResolver
	validator *validator.Validate
	logger    *zap.Logger
}

func NewRateHandler(resolver businessflow.RateResolver, logger *zap.Logger) RateHandlerInterface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateHandler{
		resolver:  resolver,
		validator: validator.New(),
		logger:    logger,
	}
}

func (h *RateHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return errorResponse(c, status, message, code, details)
}

func (h *RateHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return successResponse(c, status, message, data)
}

// ResolveRate prices a shipment against the customer's active rate records.
// A shipment that no record covers is a successful response with matched=false.
// @Summary Resolve Rate
// @Tags Rates
// @Accept json
// @Produce json
// @Param request body dto.ResolveRateRequest true "Shipment"
// @Success 200 {object} dto.APIResponse{data=dto.ResolveRateResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 503 {object} dto.APIResponse "Rate cache rebuild in progress"
// @Router /api/v1/rates/resolve [post]
func (h *RateHandler) ResolveRate(c fiber.Ctx) error {
	var req dto.ResolveRateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/rates/resolve", utils.DefaultRequestTimeout)
	defer cancel()

	decision, err := h.resolver.Resolve(ctx, req.CustomerID, req.Type, businessflow.Shipment{
		DestinationCity:   req.DestinationCity,
		Province:          req.Province,
		PostalCode:        req.PostalCode,
		Weight:            req.Weight,
		SkidCount:         req.SkidCount,
		ServiceAttributes: req.ServiceAttributes,
	})
	if err != nil {
		return flowErrorResponse(c, h.logger, err, "Rate resolution failed", "RATE_RESOLVE_FAILED")
	}

	res := dto.ResolveRateResponse{Message: "No rate matched the shipment"}
	if decision.Matched {
		res = dto.ResolveRateResponse{
			Message:    "Rate resolved",
			Matched:    true,
			RecordID:   decision.RecordID,
			RateCode:   decision.RateCode,
			Price:      decision.Price.StringFixed(utils.MoneyScale),
			Bracket:    decision.Bracket,
			MinApplied: decision.MinApplied,
			MatchedOn:  decision.MatchedOn,
		}
	}
	for _, e := range decision.Trace {
		res.Trace = append(res.Trace, dto.RateTraceItem{
			RecordID:         e.RecordID,
			PrioritySequence: e.PrioritySequence,
			Outcome:          e.Outcome,
			Detail:           e.Detail,
		})
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}
