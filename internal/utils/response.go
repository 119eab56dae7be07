package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers with data using status, 200 when zero.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return respond(c, status, APIResponse{Success: true, Data: data, Message: message})
}

// OK answers 200 with data plus listing metadata such as counts or paging.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return respond(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Message: message, Meta: meta})
}

// SendError answers with a failure envelope.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail answers with a failure envelope carrying structured details.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	if status < fiber.StatusBadRequest {
		status = fiber.StatusInternalServerError
	}
	return respond(c, status, APIResponse{Success: false, Message: message, Details: details})
}

func respond(c *fiber.Ctx, status int, body APIResponse) error {
	if body.Message == "" {
		if body.Success {
			body.Message = "success"
		} else {
			body.Message = "error"
		}
	}
	return c.Status(status).JSON(body)
}
