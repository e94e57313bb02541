package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"leadintake/internal/batch"
	"leadintake/internal/constants"
	"leadintake/internal/credential"
	"leadintake/internal/logger"
	"leadintake/internal/notify"
	"leadintake/internal/schema"
	"leadintake/pkg/errors"
)

const (
	CreatedMessage       = "Lead successfully created"
	UpdatedMessage       = "Lead successfully updated"
	InternalErrorMessage = "Internal server error processing lead"
)

type WebhookResponse struct {
	Success   bool   `json:"success"`
	LeadID    string `json:"leadId"`
	Message   string `json:"message"`
	IsNew     bool   `json:"isNew"`
	ProcessMs int64  `json:"processMs"`
}

type FailureResponse struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	ErrorCode string             `json:"error_code,omitempty"`
	Errors    []schema.Violation `json:"errors,omitempty"`
}

type ImportResponse struct {
	Success bool `json:"success"`
	*batch.Result
}

type Handler struct {
	pipeline     *Pipeline
	importer     *batch.Importer
	hub          *notify.Hub
	maxBodyBytes int64
	maxFileBytes int64
	logger       logger.Logger
}

func NewHandler(pipeline *Pipeline, importer *batch.Importer, hub *notify.Hub, maxBodyBytes, maxFileBytes int64, log logger.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = constants.DefaultMaxWebhookBodyBytes
	}
	if maxFileBytes <= 0 {
		maxFileBytes = constants.DefaultBatchMaxFileBytes
	}
	return &Handler{
		pipeline:     pipeline,
		importer:     importer,
		hub:          hub,
		maxBodyBytes: maxBodyBytes,
		maxFileBytes: maxFileBytes,
		logger:       log,
	}
}

// RegisterRoutes mounts the webhook routes behind vendorAuth and the
// CRM-facing routes behind sessionAuth. webhookLimits run before
// authentication.
func (h *Handler) RegisterRoutes(router *gin.Engine, vendorAuth, sessionAuth gin.HandlerFunc, webhookLimits ...gin.HandlerFunc) {
	webhooks := router.Group("/api/webhooks")
	{
		webhooks.GET("/health", h.Health)

		secured := webhooks.Group("", append(webhookLimits, vendorAuth)...)
		secured.POST("/nextgen", h.NextGenWebhook)
		secured.POST("/:vendor", h.VendorWebhook)
	}

	router.POST("/api/leads/import/csv", sessionAuth, h.ImportCSV)
	router.GET("/ws/notifications", sessionAuth, h.Notifications)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "webhook",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) NextGenWebhook(c *gin.Context) {
	h.webhook(c, constants.DefaultVendor)
}

func (h *Handler) VendorWebhook(c *gin.Context) {
	h.webhook(c, VendorLabel(c.Param("vendor")))
}

func (h *Handler) webhook(c *gin.Context, vendor string) {
	start := time.Now()
	ctx := c.Request.Context()

	payload, err := h.decode(c)
	if err == nil {
		var out Outcome
		out, err = h.pipeline.Ingest(ctx, credential.TenantID(c), vendor, payload)
		if err == nil {
			c.Header(constants.HeaderProcessTime, strconv.FormatInt(out.ProcessMs, 10))
			status, msg := http.StatusOK, UpdatedMessage
			if out.IsNew {
				status, msg = http.StatusCreated, CreatedMessage
			}
			c.JSON(status, WebhookResponse{
				Success:   true,
				LeadID:    out.LeadID,
				Message:   msg,
				IsNew:     out.IsNew,
				ProcessMs: out.ProcessMs,
			})
			return
		}
	}

	c.Header(constants.HeaderProcessTime, strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	if errors.IsValidation(err) {
		c.JSON(http.StatusBadRequest, FailureResponse{
			Message:   messageOf(err),
			ErrorCode: errors.ErrValidation.Code,
			Errors:    schema.Violations(err),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, FailureResponse{
		Message:   InternalErrorMessage,
		ErrorCode: errorCode(err),
	})
}

// decode reads the body as one JSON object, keeping numbers as json.Number.
func (h *Handler) decode(c *gin.Context) (map[string]interface{}, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		return nil, invalidPayload("request body too large or unreadable", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, invalidPayload("body must be a JSON object", err)
	}
	if payload == nil {
		return nil, invalidPayload("body must be a JSON object", nil)
	}
	return payload, nil
}

func invalidPayload(msg string, cause error) error {
	err := errors.ErrValidation.
		WithMessage(schema.InvalidPayloadMessage).
		WithDetail("violations", []schema.Violation{{Field: "payload", Message: msg}})
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}

// ImportCSV takes a multipart upload in field "file" and an optional vendor
// override in field "vendor".
func (h *Handler) ImportCSV(c *gin.Context) {
	ctx := c.Request.Context()
	// Multipart framing on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileBytes+1<<20)

	fh, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.handleError(c, errors.ErrValidation.
			WithMessage("CSV file is too large").
			WithDetail("max_file_bytes", h.maxFileBytes))
		return
	}
	if err != nil {
		h.handleError(c, errors.ErrValidation.WithMessage("CSV file is required in form field \"file\"").WithCause(err))
		return
	}
	if fh.Size > h.maxFileBytes {
		h.handleError(c, errors.ErrValidation.
			WithMessage("CSV file is too large").
			WithDetail("max_file_bytes", h.maxFileBytes))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.handleError(c, errors.ErrInternal.WithCause(err))
		return
	}
	defer f.Close()

	res, err := h.importer.Import(ctx, credential.TenantID(c), fh.Filename, f, c.PostForm("vendor"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ImportResponse{Success: true, Result: res})
}

// Notifications upgrades to a websocket that streams the tenant's lead
// notifications until the client goes away.
func (h *Handler) Notifications(c *gin.Context) {
	tenantID := credential.TenantID(c)
	if err := h.hub.Serve(c.Writer, c.Request, tenantID); err != nil {
		h.logger.DebugwCtx(c.Request.Context(), "Notification stream closed", "error", err)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	body := gin.H{
		"success":    false,
		"message":    messageOf(err),
		"error_code": errorCode(err),
	}
	if status >= http.StatusInternalServerError {
		body["message"] = "Internal server error"
	} else if details := errors.ToErrorResponse(err)["details"]; details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}

// VendorLabel maps a webhook path segment to the vendor label stamped on
// leads.
func VendorLabel(segment string) string {
	switch strings.ToLower(segment) {
	case "", "nextgen":
		return constants.DefaultVendor
	case "marketplace":
		return constants.MarketplaceVendor
	}
	return segment
}

func messageOf(err error) string {
	var appErr *errors.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func errorCode(err error) string {
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return errors.ErrInternal.Code
}
