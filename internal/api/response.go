package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aqua-x402/credit-engine/pkg/model"
)

// CreatedResponse returns the id of a newly created negotiation.
type CreatedResponse struct {
	ID uint64 `json:"id"`
}

// IndexResponse returns the index of an appended quote or bid.
type IndexResponse struct {
	ID    uint64 `json:"id"`
	Index int    `json:"index"`
}

// CreditLineResponse returns the facility issued for a negotiation.
type CreditLineResponse struct {
	CreditLineID uint64           `json:"creditLineId"`
	CreditLine   model.CreditLine `json:"creditLine"`
}

// statusForError maps engine error kinds onto HTTP status codes. Conflicts
// between the request and the negotiation's current state are 409; running
// out of lender capital is a semantic rejection, 422.
func statusForError(err error) int {
	switch model.ErrorKind(err) {
	case "invalid_input":
		return fiber.StatusBadRequest
	case "unauthorized":
		return fiber.StatusForbidden
	case "not_found":
		return fiber.StatusNotFound
	case "invalid_state", "too_early", "already_accepted", "already_executed", "no_winner":
		return fiber.StatusConflict
	case "insufficient_funds":
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  model.ErrorKind(err),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}
