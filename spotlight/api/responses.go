package api

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// APIResponse is the envelope every endpoint returns.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries a machine-readable code alongside the message.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// PaginatedResponse wraps list endpoints with paging metadata.
type PaginatedResponse struct {
	APIResponse
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// PaginationInfo contains pagination metadata.
type PaginationInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func NewPaginationInfo(page, limit, total int) *PaginationInfo {
	totalPages := (total + limit - 1) / limit
	return &PaginationInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// SendSuccess sends a successful JSON response.
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.Status(http.StatusOK).JSON(&APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// SendCreated sends a created resource JSON response.
func SendCreated(c *fiber.Ctx, data interface{}, message string) error {
	return c.Status(http.StatusCreated).JSON(&APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// SendPaginated sends a paginated JSON response.
func SendPaginated(c *fiber.Ctx, data interface{}, pagination *PaginationInfo, message string) error {
	return c.Status(http.StatusOK).JSON(&PaginatedResponse{
		APIResponse: APIResponse{
			Success:   true,
			Message:   message,
			Data:      data,
			Timestamp: time.Now(),
		},
		Pagination: pagination,
	})
}

// SendError sends an error JSON response.
func SendError(c *fiber.Ctx, statusCode int, code, message string, details map[string]string) error {
	return c.Status(statusCode).JSON(&APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

// SendBadRequest sends a bad request error response.
func SendBadRequest(c *fiber.Ctx, message string, details map[string]string) error {
	return SendError(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

// SendNotFound sends a not found error response.
func SendNotFound(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// SendForbidden sends a forbidden error response.
func SendForbidden(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// SendConflict sends a conflict error response.
func SendConflict(c *fiber.Ctx, code, message string) error {
	return SendError(c, http.StatusConflict, code, message, nil)
}

// SendInternalServerError sends an internal server error response.
func SendInternalServerError(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, nil)
}

// SendServiceUnavailable signals a storage-layer failure the client may
// retry.
func SendServiceUnavailable(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}
