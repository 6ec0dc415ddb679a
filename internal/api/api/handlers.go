package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"festpass/internal/auth"
	"festpass/internal/dto"
	"festpass/internal/service"
)

type handlers struct {
	svc  *service.Service
	auth *auth.Authenticator
	log  *zerolog.Logger
}

func (h *handlers) Health(c *ginext.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("health check failed")
		dto.ErrorResponse(c, http.StatusServiceUnavailable, dto.ServiceUnavailable, "Database unavailable")
		return
	}
	dto.SuccessResponse(c, map[string]string{"database": "ok"})
}

func (h *handlers) ListEvents(c *ginext.Context) {
	events, err := h.svc.ListEvents(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list events")
		return
	}
	dto.SuccessResponse(c, events)
}

func (h *handlers) CreateOrder(c *ginext.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	resp, err := h.svc.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "create order failed")
		return
	}
	dto.SuccessCreatedResponse(c, resp)
}

func (h *handlers) VerifyPayment(c *ginext.Context) {
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	resp, err := h.svc.VerifyPayment(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "payment verification failed")
		return
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) GetRegistration(c *ginext.Context) {
	resp, err := h.svc.GetPublicRegistration(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		h.fail(c, err, "registration lookup failed")
		return
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) Login(c *ginext.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err, "login failed")
		return
	}
	dto.SuccessResponse(c, dto.LoginResponse{
		AccessToken: sess.Token,
		ExpiresAt:   sess.ExpiresAt,
		User:        *sess.Staff,
	})
}

func (h *handlers) CheckIn(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		dto.FieldBadFormatError(c, "id")
		return
	}
	staffID, _ := auth.StaffID(c)
	resp, err := h.svc.CheckIn(c.Request.Context(), id, staffID)
	if err != nil {
		h.fail(c, err, "check-in failed")
		return
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) CheckInByTicket(c *ginext.Context) {
	staffID, _ := auth.StaffID(c)
	resp, err := h.svc.CheckInByTicket(c.Request.Context(), c.Param("ticketId"), staffID)
	if err != nil {
		h.fail(c, err, "check-in failed")
		return
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) RegeneratePass(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		dto.FieldBadFormatError(c, "id")
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "true"))
	resp, err := h.svc.RegeneratePass(c.Request.Context(), id, force)
	if err != nil {
		h.fail(c, err, "pass regeneration failed")
		return
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) ListRegistrations(c *ginext.Context) {
	var q dto.RegistrationListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid query parameters")
		return
	}
	resp, err := h.svc.ListRegistrations(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err, "list registrations failed")
		return
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) Stats(c *ginext.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err, "stats failed")
		return
	}
	dto.SuccessResponse(c, stats)
}

func (h *handlers) fail(c *ginext.Context, err error, msg string) {
	h.log.Warn().Err(err).Str("path", c.FullPath()).Msg(msg)
	dto.AppError(c, err)
}
