package tables

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"bulkmerge/core/logger"
	"bulkmerge/core/merge"
	"bulkmerge/feature/records"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for table operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the table routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/tables")
	group.Get("/:table/columns", h.HandleColumns)
	group.Post("/:table/:operation", h.HandleApply)
}

type applyRequest struct {
	Schema         string        `json:"schema"`
	Rows           []records.Row `json:"rows"`
	PrimaryKeys    []string      `json:"primary_keys"`
	Exclude        []string      `json:"exclude"`
	BatchSize      int           `json:"batch_size"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	SkipIdentity   bool          `json:"skip_identity"`
}

// HandleApply runs one bulk operation and returns the rows with identities filled in.
func (h *Handler) HandleApply(c *fiber.Ctx) error {
	table := c.Params("table")
	l := logger.WithRequestID(h.service.logger, c)

	kind, ok := merge.ParseKind(c.Params("operation"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown operation " + c.Params("operation"),
		})
	}

	var body applyRequest
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}
	records.Normalize(body.Rows)

	result, err := h.service.Apply(c.UserContext(), kind, table, Request{
		Schema:       body.Schema,
		Rows:         body.Rows,
		PrimaryKeys:  body.PrimaryKeys,
		Exclude:      body.Exclude,
		BatchSize:    body.BatchSize,
		Timeout:      time.Duration(body.TimeoutSeconds) * time.Second,
		SkipIdentity: body.SkipIdentity,
	})
	if err != nil {
		l.Error("Table operation failed",
			zap.String("table", table),
			zap.String("operation", string(kind)),
			zap.Error(err),
		)
		return failure(c, err)
	}

	return c.JSON(result)
}

// HandleColumns returns the catalog of a table.
func (h *Handler) HandleColumns(c *fiber.Ctx) error {
	columns, err := h.service.Columns(c.UserContext(), c.Query("schema"), c.Params("table"))
	if err != nil {
		logger.WithRequestID(h.service.logger, c).Error("Catalog lookup failed", zap.Error(err))
		return failure(c, err)
	}
	return c.JSON(fiber.Map{"table": c.Params("table"), "columns": columns})
}

func failure(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, merge.ErrTableNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, merge.ErrNoPrimaryKey):
		status = fiber.StatusUnprocessableEntity
	}

	body := fiber.Map{"error": err.Error()}
	var me *merge.Error
	if errors.As(err, &me) {
		body["step"] = me.Step
	}
	return c.Status(status).JSON(body)
}
