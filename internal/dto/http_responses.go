package dto

import (
	"errors"

	"github.com/wb-go/wbf/ginext"

	"festpass/internal/apperr"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	RegistrationNotFound = "REGISTRATION_NOT_FOUND"
	RateLimited          = "RATE_LIMITED"
	Unauthorized         = "UNAUTHORIZED"
	Forbidden            = "FORBIDDEN"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code    string         `json:"code"`
	Desc    string         `json:"desc"`
	Details map[string]any `json:"details,omitempty"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, 400, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, 500, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func RegistrationNotFoundError(c *ginext.Context) {
	ErrorResponse(c, 404, RegistrationNotFound, "Registration not found")
}

func UnauthorizedError(c *ginext.Context, desc string) {
	ErrorResponse(c, 401, Unauthorized, desc)
}

func ForbiddenError(c *ginext.Context) {
	ErrorResponse(c, 403, Forbidden, "Not authorized for this action")
}

// AppError renders err by its apperr kind. Internal and upstream failures
// keep their cause out of the body.
func AppError(c *ginext.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindInternal {
		InternalServerError(c)
		return
	}
	desc := e.Msg
	if desc == "" {
		desc = InternalError
	}
	c.AbortWithStatusJSON(e.Kind.HTTPStatus(), Response{
		Status: "error",
		Error: &Error{
			Code:    e.CodeOrKind(),
			Desc:    desc,
			Details: e.Details,
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
