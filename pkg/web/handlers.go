package web

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/flowstate/pkg/graph"
	"github.com/dukex/flowstate/pkg/persistence"
	"github.com/dukex/flowstate/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine      *workflow.Engine
	persistence persistence.Persistence
	loader      *graph.Loader
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	engine *workflow.Engine,
	persistence persistence.Persistence,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: persistence,
		loader:      graph.NewLoader(),
		validator:   validator,
		logger:      logger.With("module", "api_handlers"),
	}
}

// Register mounts every route on app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Post("/triggers", h.PostTrigger)
	app.Post("/node-states/:id/approvals", h.PostApproval)
	app.Get("/instances/:id", h.GetInstance)
	app.Get("/users/:id/notifications", h.GetNotifications)
	app.Put("/diagrams", h.PutDiagram)
	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) PostTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.StartOrResumeTrigger(c.Context(), req.toEngine())
	if err != nil {
		return handleEngineError(c, err)
	}

	status := fiber.StatusOK
	if result.Started {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(result)
}

func (h *APIHandlers) PostApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Node state ID is required")
	}

	var req ApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.SubmitApproval(c.Context(), req.toEngine(id))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	details, err := h.engine.Instance(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(details)
}

// GetNotifications lists the in-app inbox of a user, newest first.
func (h *APIHandlers) GetNotifications(c fiber.Ctx) error {
	notifications, err := h.persistence.Notifications().ListByRecipient(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"total_count":   len(notifications),
	})
}

// PutDiagram imports a diagram document, replacing the stored version.
func (h *APIHandlers) PutDiagram(c fiber.Ctx) error {
	diagram, err := h.loader.Load(bytes.NewReader(c.Body()))
	if err != nil {
		return handleEngineError(c, err)
	}

	err = graph.Import(c.Context(), h.persistence, diagram)
	if err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Diagram imported", "diagram_id", diagram.ID, "nodes", len(diagram.Nodes))

	return c.JSON(DiagramImportResponse{
		ID:          diagram.ID,
		Nodes:       len(diagram.Nodes),
		Connections: len(diagram.Connections),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Flowstate API is healthy"
	httpStatus := http.StatusOK
	database := "ok"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "Flowstate API is unhealthy"
		httpStatus = http.StatusInternalServerError
		database = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"database": database,
		},
		"timestamp": time.Now().UTC(),
	})
}
