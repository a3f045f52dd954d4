package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kioskguard/internal/domain"
	"kioskguard/internal/infra/auth/rbac"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	var (
		mismatch *domain.MismatchError
		denied   *domain.DeniedError
	)
	if authz, ok := rbac.IsAuthzError(err); ok {
		writeErrorCode(c, http.StatusForbidden, authz.Code, "role not permitted")
		return
	}
	switch {
	case errors.As(err, &mismatch):
		c.JSON(http.StatusForbidden, errorResponse{
			Code:    "DEVICE_MISMATCH",
			Message: "device mismatch: grace period exceeded",
			Details: map[string]any{"licenseId": mismatch.LicenseID, "graceDay": mismatch.GraceDay},
		})
	case errors.As(err, &denied):
		details := map[string]any{"capability": string(denied.Capability)}
		if denied.Reason != "" {
			details["reason"] = denied.Reason
		}
		c.JSON(http.StatusForbidden, errorResponse{
			Code:    "INSUFFICIENT_PERMISSION",
			Message: "insufficient permission",
			Details: details,
		})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, domain.ErrInsufficientPermission):
		writeErrorCode(c, http.StatusForbidden, "INSUFFICIENT_PERMISSION", "insufficient permission")
	case errors.Is(err, domain.ErrForbiddenModification):
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN_MODIFICATION", "cannot modify a super admin")
	case errors.Is(err, domain.ErrLicenseInactive):
		writeErrorCode(c, http.StatusForbidden, "LICENSE_INACTIVE", "license is not active")
	case errors.Is(err, domain.ErrLicenseExpired):
		writeErrorCode(c, http.StatusForbidden, "LICENSE_EXPIRED", "license expired")
	case errors.Is(err, domain.ErrDeviceMismatch):
		writeErrorCode(c, http.StatusForbidden, "DEVICE_MISMATCH", "device mismatch")
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, domain.ErrAlreadyBound):
		writeErrorCode(c, http.StatusConflict, "ALREADY_BOUND", "license already assigned")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeErrorCode(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, domain.ErrStorage):
		writeErrorCode(c, http.StatusServiceUnavailable, "STORAGE_ERROR", "storage unavailable, retry")
	case errors.Is(err, domain.ErrConflict):
		writeErrorCode(c, http.StatusConflict, "CONFLICT", "concurrent update, retry")
	default:
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
