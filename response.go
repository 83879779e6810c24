package content

import (
	"github.com/gofiber/fiber/v2"
)

// SuccessResponse is the wire envelope for every successful response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

// ErrorResponse is the wire envelope produced by the error classifier. Stack
// and OriginalError are only populated in development mode.
type ErrorResponse struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	Code          string              `json:"code"`
	Errors        map[string][]string `json:"errors,omitempty"`
	Stack         string              `json:"stack,omitempty"`
	OriginalError string              `json:"originalError,omitempty"`
	RequestID     string              `json:"requestId,omitempty"`
}

// PageMeta carries pagination metadata for list responses.
type PageMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPageMeta computes pagination metadata for a result window.
func NewPageMeta(page, perPage, total int) PageMeta {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return PageMeta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// RespondOK renders a 200 success envelope.
func RespondOK(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Success: true, Data: data})
}

// RespondCreated renders a 201 success envelope.
func RespondCreated(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(SuccessResponse{Success: true, Data: data})
}

// RespondMessage renders a success envelope with only a human message.
func RespondMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(SuccessResponse{Success: true, Message: message})
}

// RespondList renders a 200 success envelope with pagination meta.
func RespondList(c *fiber.Ctx, data any, meta PageMeta) error {
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Success: true, Data: data, Meta: meta})
}
