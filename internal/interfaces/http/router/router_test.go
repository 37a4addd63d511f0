package router

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techdigits/backend/internal/interfaces/http/handler"
	"github.com/techdigits/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func serve(engine *gin.Engine, method, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.Register(group).Setup()

	w := serve(engine, http.MethodGet, "/api/v2/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/test/ping").Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("orders", "/orders")
		assert.Equal(t, "orders", g.Name())
		assert.Equal(t, "/orders", g.Prefix())
	})

	t.Run("middleware runs before routes", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test").Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "ok") }).
			POST("/items", func(c *gin.Context) { c.String(http.StatusCreated, "created") })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/test/items")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
		assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/test/items").Code)
	})

	t.Run("subgroups inherit middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("admin", "/admin").Use(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusForbidden)
		})
		g.Group("payments", "/payments").GET("/summary", func(c *gin.Context) {
			c.String(http.StatusOK, "summary")
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/v1/admin/payments/summary").Code)
	})
}

// stubGuards authenticate requests carrying X-Role and admit admins
// only when X-Role is admin.
func stubGuards() Guards {
	return Guards{
		Authenticated: func(c *gin.Context) {
			if c.GetHeader("X-Role") == "" {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Next()
		},
		AdminOnly: func(c *gin.Context) {
			if c.GetHeader("X-Role") != "admin" {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			// Stop before handlers that would reach a service.
			c.AbortWithStatus(http.StatusTeapot)
		},
	}
}

func mountAPI(t *testing.T, g Guards) *gin.Engine {
	t.Helper()
	engine := gin.New()
	Mount(NewRouter(engine), Handlers{
		Auth:     handler.NewAuthHandler(nil),
		Orders:   handler.NewOrderHandler(nil),
		Payments: handler.NewPaymentHandler(nil),
		Admin:    handler.NewAdminHandler(nil),
	}, g)
	return engine
}

func TestMountRegistersAPI(t *testing.T) {
	engine := mountAPI(t, stubGuards())

	var got []string
	for _, ri := range engine.Routes() {
		got = append(got, ri.Method+" "+ri.Path)
	}
	sort.Strings(got)

	want := []string{
		"GET /api/v1/admin/payments/summary",
		"GET /api/v1/admin/payments/users/:userId",
		"GET /api/v1/auth/me",
		"GET /api/v1/orders",
		"GET /api/v1/orders/:id",
		"GET /api/v1/orders/mine",
		"GET /api/v1/payments",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"POST /api/v1/auth/password/forgot",
		"POST /api/v1/auth/password/reset",
		"POST /api/v1/auth/password/verify",
		"POST /api/v1/orders",
		"POST /api/v1/orders/:id/cancel",
		"POST /api/v1/payments/confirm",
		"POST /api/v1/payments/direct",
		"POST /api/v1/payments/initiate",
		"POST /api/v1/payments/resend",
	}
	assert.Equal(t, want, got)
}

func TestMountGuards(t *testing.T) {
	engine := mountAPI(t, stubGuards())

	tests := []struct {
		method string
		path   string
		role   string
		status int
	}{
		{http.MethodPost, "/api/v1/payments/confirm", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/orders/mine", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/auth/logout", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/orders", "customer", http.StatusForbidden},
		{http.MethodPost, "/api/v1/orders/" + strings.Repeat("a", 8) + "/cancel", "customer", http.StatusForbidden},
		{http.MethodGet, "/api/v1/payments", "customer", http.StatusForbidden},
		{http.MethodGet, "/api/v1/admin/payments/summary", "customer", http.StatusForbidden},
		{http.MethodGet, "/api/v1/admin/payments/summary", "admin", http.StatusTeapot},
		{http.MethodGet, "/api/v1/orders", "admin", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" as "+tt.role, func(t *testing.T) {
			var headers []string
			if tt.role != "" {
				headers = []string{"X-Role", tt.role}
			}
			assert.Equal(t, tt.status, serve(engine, tt.method, tt.path, headers...).Code)
		})
	}
}

func TestMountPublicAuthRoutes(t *testing.T) {
	var limited int
	g := stubGuards()
	g.PublicAuth = func(c *gin.Context) {
		limited++
		c.Next()
	}
	engine := mountAPI(t, g)

	// An empty body fails binding before the service is reached.
	w := serve(engine, http.MethodPost, "/api/v1/auth/login")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, limited)

	// Session routes are not behind the public limiter.
	serve(engine, http.MethodGet, "/api/v1/auth/me")
	assert.Equal(t, 1, limited)
}
