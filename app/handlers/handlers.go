// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/freightdesk/app/dto"
	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/amirphl/freightdesk/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must have at least " + err.Param() + " items"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, getValidationErrorMessage(e))
	}
	return out
}

func errorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func successResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// flowErrorResponse maps a rate engine error to a status code. Unknown
// errors are logged and reported with the fallback code.
func flowErrorResponse(c fiber.Ctx, logger *zap.Logger, err error, message, fallbackCode string) error {
	code := businessflow.ErrorCode(err)
	switch {
	case businessflow.IsValidation(err),
		businessflow.IsUnsupportedSheetFormat(err),
		businessflow.IsSheetHeaderMissing(err),
		businessflow.IsSheetTooLarge(err):
		return errorResponse(c, fiber.StatusBadRequest, message, code, err.Error())
	case businessflow.IsImportBatchNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, "Import batch not found", code, nil)
	case businessflow.IsImportBatchNotActive(err):
		return errorResponse(c, fiber.StatusConflict, "Import batch is not active", code, nil)
	case businessflow.IsCacheBuildTimeout(err):
		return errorResponse(c, fiber.StatusServiceUnavailable, "Rate cache is being rebuilt, retry shortly", code, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(c, fiber.StatusGatewayTimeout, "Request timed out", "REQUEST_TIMEOUT", nil)
	}

	logger.Error(message, zap.String("code", code), zap.String("path", c.Path()), zap.Error(err))
	if code == "" {
		code = fallbackCode
	}
	return errorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// requestContext carries request metadata into the flows. The caller must
// call the returned cancel func.
func requestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		if v, ok := c.Locals("requestid").(string); ok {
			requestID = v
		}
	}
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID)
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}

// queryUint parses an optional unsigned query parameter; empty yields 0.
func queryUint(c fiber.Ctx, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return uint(v), nil
}

func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

func queryBool(c fiber.Ctx, key string, def bool) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
