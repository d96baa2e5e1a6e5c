package utils

import (
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"cdmsuite/models"
)

// Error codes used across the CRM surface
const (
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeMissingRequiredField    = "MISSING_REQUIRED_FIELD"
	CodeInvalidFormat           = "INVALID_FORMAT"
	CodeDuplicateEntry          = "DUPLICATE_ENTRY"
	CodeRecordNotFound          = "RECORD_NOT_FOUND"
	CodeSequenceNoSteps         = "SEQUENCE_NO_STEPS"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeDatabaseError           = "DATABASE_ERROR"
)

// FailWarn logs a permission or validation failure at warning severity, then
// writes the error response. Expected failures never reach sentry.
func FailWarn(c *fiber.Ctx, status int, code, message string, fields logrus.Fields) error {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["code"] = code
	fields["path"] = c.Path()
	logrus.WithFields(fields).Warn(message)

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// FailError logs an unexpected failure at error severity, captures it to
// sentry, and writes the error response with the underlying message attached
// for diagnostics.
func FailError(c *fiber.Ctx, status int, code, message string, err error, fields logrus.Fields) error {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["code"] = code
	fields["path"] = c.Path()
	entry := logrus.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)

	if err != nil {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("code", code)
			scope.SetTag("path", c.Path())
			sentry.CaptureException(err)
		})
	}

	response := fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// FailTransition maps a state-machine error onto the right response. Guard
// violations are expected, so they log at warning severity.
func FailTransition(c *fiber.Ctx, err error, fields logrus.Fields) error {
	var coded *models.CodedError
	if errors.As(err, &coded) {
		return FailWarn(c, fiber.StatusBadRequest, coded.Code, coded.Message, fields)
	}
	return FailError(c, fiber.StatusInternalServerError, CodeDatabaseError, "unexpected error", err, fields)
}
