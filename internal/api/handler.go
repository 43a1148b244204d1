package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/georgeshao/fleetctx/internal/audit"
	"github.com/georgeshao/fleetctx/internal/dispatcher"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/pkg/types"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

type Handler struct {
	store      storage.Store
	dispatcher *dispatcher.Dispatcher
	audit      audit.Log
}

func NewHandler(store storage.Store, d *dispatcher.Dispatcher, log audit.Log) *Handler {
	return &Handler{
		store:      store,
		dispatcher: d,
		audit:      log,
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.store.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListOperations handles GET /v1/catalog
func (h *Handler) ListOperations(c *fiber.Ctx) error {
	specs := h.dispatcher.Catalog().Specs()
	return c.JSON(types.CatalogResponse{Operations: specs, Count: len(specs)})
}

// InvokeOperation handles POST /v1/ops/:name. The body is the operation's
// argument object; an empty body means no arguments.
func (h *Handler) InvokeOperation(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := h.dispatcher.Catalog().Lookup(name); !ok {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
			Error: "Operation not found: " + name,
			Code:  string(opserr.NotFound),
		})
	}

	args := json.RawMessage(c.Body())
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Error: "Invalid request body",
			Code:  string(opserr.InvalidParameter),
		})
	}

	result, err := h.dispatcher.Invoke(c.UserContext(), name, args)
	if err != nil {
		return writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(result)
}

// Ask handles POST /v1/ask
func (h *Handler) Ask(c *fiber.Ctx) error {
	if !h.dispatcher.HasPlanner() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ErrorResponse{Error: "No planner configured"})
	}

	var req types.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Question is required"})
	}

	return c.JSON(h.dispatcher.Run(c.UserContext(), req.Question))
}

// ListAudit handles GET /v1/audit
func (h *Handler) ListAudit(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultAuditLimit)
	if limit <= 0 || limit > maxAuditLimit {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Error: "limit must be between 1 and 1000",
			Code:  string(opserr.InvalidParameter),
		})
	}

	entries, err := h.audit.List(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to list audit entries"})
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}

	resp := types.AuditListResponse{Entries: entries, Count: len(entries)}
	if counter, ok := h.audit.(audit.Counter); ok {
		totals, err := counter.Totals(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to count audit entries"})
		}
		resp.Totals = totals
	}
	return c.JSON(resp)
}
