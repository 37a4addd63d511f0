package handler

import (
	"github.com/gin-gonic/gin"
	paymentapp "github.com/techdigits/backend/internal/application/payment"
	"github.com/techdigits/backend/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader lets a client retry a confirmation safely.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// PaymentHandler handles payment HTTP requests
type PaymentHandler struct {
	BaseHandler
	payments PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Initiate godoc
// @Summary      Start paying an order
// @Description  Sends a one-time code over the channel bound to the method when one is required
// @Tags         payments
// @Param        request body paymentapp.InitiateRequest true "Order and method"
// @Success      200 {object} dto.Response{data=paymentapp.InitiateResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payments/initiate [post]
func (h *PaymentHandler) Initiate(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req paymentapp.InitiateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.Initiate(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Resend issues a fresh code for an order awaiting confirmation.
func (h *PaymentHandler) Resend(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req paymentapp.ResendRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.Resend(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Confirm godoc
// @Summary      Confirm a payment with the code
// @Tags         payments
// @Param        Idempotency-Key header string false "Retry key"
// @Param        request body paymentapp.ConfirmRequest true "Order, method, code and instrument"
// @Success      200 {object} dto.Response{data=paymentapp.ConfirmResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      410 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payments/confirm [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	key := c.GetHeader(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLength {
		h.BadRequest(c, "Idempotency-Key is too long")
		return
	}
	var req paymentapp.ConfirmRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.Confirm(c.Request.Context(), userID, req, key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Direct pays without a code where the method or a recent verification
// allows it.
func (h *PaymentHandler) Direct(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req paymentapp.DirectRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.ProcessDirect(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// TransactionsQuery bounds the admin transaction listing.
type TransactionsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ListTransactions lists recent payments, redacted. Admin only.
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	var q TransactionsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	items, err := h.payments.ListTransactions(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// AdminHandler serves the payment reports.
type AdminHandler struct {
	BaseHandler
	payments PaymentService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(payments PaymentService) *AdminHandler {
	return &AdminHandler{payments: payments}
}

// Summary aggregates succeeded payments per user.
func (h *AdminHandler) Summary(c *gin.Context) {
	rows, err := h.payments.Summary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// UserPaidOrders lists the paid orders of one user.
func (h *AdminHandler) UserPaidOrders(c *gin.Context) {
	userID, ok := h.pathUUID(c, "userId")
	if !ok {
		return
	}
	var page dto.PageRequest
	if !h.bindQuery(c, &page) {
		return
	}
	page = page.Normalize()
	resp, err := h.payments.UserPaidOrders(c.Request.Context(), userID, page.Page, page.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessPage(c, resp, resp.Total, page.Page, page.PageSize)
}
