package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kioskguard/internal/domain"
	"kioskguard/internal/usecase"
)

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "licenseKey and deviceFingerprint are required")
		return
	}
	fingerprint := req.fingerprint()
	if fingerprint == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "deviceFingerprint is required")
		return
	}
	result, err := s.engine.Validate(c.Request.Context(), req.LicenseKey, fingerprint)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildValidateResponse(result))
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.issuer == nil || s.admins == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "login is not enabled")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "email and password are required")
		return
	}
	user, err := s.admins.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	token, expires, err := s.issuer.Issue(user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires})
}

func (s *Server) handleCreateLicense(c *gin.Context) {
	var req createLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "expiresAt must be an RFC 3339 timestamp")
		return
	}
	license, err := s.licenses.CreateLicense(c.Request.Context(), actorFrom(c), req.ExpiresAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildLicenseResponse(license, nil))
}

func (s *Server) handleListLicenses(c *gin.Context) {
	views, err := s.licenses.FindAll(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]licenseResponse, 0, len(views))
	for _, v := range views {
		out = append(out, buildLicenseResponse(v.License, v.Device))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetLicense(c *gin.Context) {
	view, err := s.licenses.GetLicense(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildLicenseResponse(view.License, view.Device))
}

func (s *Server) handleAssignLicense(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "fingerprint is required")
		return
	}
	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = req.DeviceID
	}
	if fingerprint == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "fingerprint is required")
		return
	}
	view, err := s.licenses.AssignLicense(c.Request.Context(), actorFrom(c), c.Param("id"), fingerprint, req.DeviceName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildLicenseResponse(view.License, view.Device))
}

func (s *Server) handleRevokeLicense(c *gin.Context) {
	license, err := s.licenses.RevokeLicense(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildLicenseResponse(license, nil))
}

func (s *Server) handleRebindDevice(c *gin.Context) {
	if err := s.licenses.RebindDevice(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListAuditLogs(c *gin.Context) {
	filter := usecase.AuditFilter{EntityID: strings.TrimSpace(c.Query("entityId"))}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	entries, err := s.audit.List(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, buildAuditResponse(e))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateAdmin(c *gin.Context) {
	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "email and a password of at least 8 characters are required")
		return
	}
	user, err := s.admins.CreateAdmin(c.Request.Context(), actorFrom(c), usecase.CreateAdminInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildAdminResponse(user))
}

func (s *Server) handleListAdmins(c *gin.Context) {
	users, err := s.admins.ListAdmins(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]adminResponse, 0, len(users))
	for _, u := range users {
		out = append(out, buildAdminResponse(u))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpdatePermissions(c *gin.Context) {
	var patch domain.PermissionsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid permissions body")
		return
	}
	user, err := s.admins.UpdatePermissions(c.Request.Context(), actorFrom(c), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildAdminResponse(user))
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "isActive is required")
		return
	}
	user, err := s.admins.UpdateStatus(c.Request.Context(), actorFrom(c), c.Param("id"), *req.IsActive)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildAdminResponse(user))
}
