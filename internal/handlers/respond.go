package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
)

// respondError writes the error envelope. Internal causes are logged and
// never sent to the client.
func respondError(c *gin.Context, err error) {
	appErr := apperror.As(err)

	fields := logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"code":   appErr.Code,
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Log.WithError(err).WithFields(fields).Error("Request failed")
	} else if appErr.Cause != nil {
		logger.Log.WithError(appErr.Cause).WithFields(fields).Debug(appErr.Message)
	}

	c.AbortWithStatusJSON(appErr.HTTPStatus, models.ErrorResponse{
		Error: models.ErrorBody{Code: string(appErr.Code), Message: appErr.Message},
	})
}

// bindJSON decodes and validates the body into req, responding with a
// VALIDATION_ERROR when that fails.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, apperror.Validation(validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fieldMessage(fe))
		}
		return strings.Join(parts, "; ")
	}
	if errors.Is(err, io.EOF) {
		return "request body is required"
	}
	return "request body is not valid JSON"
}

func fieldMessage(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "url":
		return field + " must be a valid URL"
	case "uuid":
		return field + " must be a UUID"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "min":
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func methodNotAllowed(allowed ...string) gin.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(c *gin.Context) {
		c.Header("Allow", allow)
		respondError(c, apperror.New(apperror.ErrCodeMethodNotAllowed, "method "+c.Request.Method+" not allowed"))
	}
}

func notFound(c *gin.Context) {
	respondError(c, apperror.New(apperror.ErrCodeNotFound, "route not found"))
}
