package handler

import (
	"github.com/gin-gonic/gin"
	orderapp "github.com/techdigits/backend/internal/application/order"
	"github.com/techdigits/backend/internal/interfaces/http/dto"
)

// OrderHandler handles order HTTP requests
type OrderHandler struct {
	BaseHandler
	orders OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Create godoc
// @Summary      Place an order
// @Description  Prices come from the catalog, never from the request
// @Tags         orders
// @Param        request body orderapp.CreateOrderRequest true "Order items"
// @Success      201 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req orderapp.CreateOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.orders.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListMine lists the caller's orders.
func (h *OrderHandler) ListMine(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var page dto.PageRequest
	if !h.bindQuery(c, &page) {
		return
	}
	page = page.Normalize()
	result, err := h.orders.ListMine(c.Request.Context(), userID, page.Page, page.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessPage(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Get returns one order. Customers only see their own.
func (h *OrderHandler) Get(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.orders.Get(c.Request.Context(), orderID, userID, h.isAdmin(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListAll lists every order, optionally filtered by status. Admin only.
func (h *OrderHandler) ListAll(c *gin.Context) {
	var filter orderapp.ListOrdersFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	page := dto.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	filter.Page, filter.PageSize = page.Page, page.PageSize

	result, err := h.orders.ListAll(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessPage(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Cancel cancels a pending order. Admin only.
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.orders.Cancel(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
