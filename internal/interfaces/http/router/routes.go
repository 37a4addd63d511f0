package router

import (
	"github.com/gin-gonic/gin"
	"github.com/techdigits/backend/internal/interfaces/http/handler"
)

// Handlers are the endpoints mounted by Mount.
type Handlers struct {
	Auth     *handler.AuthHandler
	Orders   *handler.OrderHandler
	Payments *handler.PaymentHandler
	Admin    *handler.AdminHandler
}

// Guards are the access checks Mount attaches to protected groups.
// PublicAuth, when set, runs before the unauthenticated /auth endpoints.
type Guards struct {
	Authenticated gin.HandlerFunc
	AdminOnly     gin.HandlerFunc
	PublicAuth    gin.HandlerFunc
}

// Mount registers the API routes on r and sets them up.
func Mount(r *Router, h Handlers, g Guards) {
	public := NewDomainGroup("auth", "/auth")
	if g.PublicAuth != nil {
		public.Use(g.PublicAuth)
	}
	public.POST("/login", h.Auth.Login)
	public.POST("/password/forgot", h.Auth.ForgotPassword)
	public.POST("/password/verify", h.Auth.VerifyResetCode)
	public.POST("/password/reset", h.Auth.ResetPassword)

	session := NewDomainGroup("session", "/auth").Use(g.Authenticated)
	session.POST("/logout", h.Auth.Logout)
	session.GET("/me", h.Auth.Me)

	orders := NewDomainGroup("orders", "/orders").Use(g.Authenticated)
	orders.POST("", h.Orders.Create)
	orders.GET("/mine", h.Orders.ListMine)
	orders.GET("/:id", h.Orders.Get)
	orders.GET("", g.AdminOnly, h.Orders.ListAll)
	orders.POST("/:id/cancel", g.AdminOnly, h.Orders.Cancel)

	payments := NewDomainGroup("payments", "/payments").Use(g.Authenticated)
	payments.POST("/initiate", h.Payments.Initiate)
	payments.POST("/resend", h.Payments.Resend)
	payments.POST("/confirm", h.Payments.Confirm)
	payments.POST("/direct", h.Payments.Direct)
	payments.GET("", g.AdminOnly, h.Payments.ListTransactions)

	admin := NewDomainGroup("admin", "/admin").Use(g.Authenticated, g.AdminOnly)
	admin.Group("payments", "/payments").
		GET("/summary", h.Admin.Summary).
		GET("/users/:userId", h.Admin.UserPaidOrders)

	r.Register(public).
		Register(session).
		Register(orders).
		Register(payments).
		Register(admin)
	r.Setup()
}
