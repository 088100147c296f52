package handlers

import (
	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Auth           *AuthHandler
	Catalog        *CatalogHandler
	Cart           *CartHandler
	Orders         *OrderHandler
	Payments       *PaymentHandler
	Users          *UserHandler
	PaymentMethods *PaymentMethodHandler
	Stats          *StatsHandler
}

// RegisterRoutes mounts the API. authLimit guards the credential endpoints.
// The gateway callbacks stay unthrottled: they must always be acknowledged.
func RegisterRoutes(router gin.IRouter, h Handlers, jwtSecret []byte, authLimit gin.HandlerFunc) {
	router.GET("/health", HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	// Public catalog
	router.GET("/categorias", h.Catalog.ListCategories)
	router.GET("/categorias/:id", h.Catalog.GetCategory)
	router.GET("/productos", h.Catalog.ListProducts)
	router.GET("/productos/:id", h.Catalog.GetProduct)
	router.GET("/payment-methods/active", h.PaymentMethods.ListActive)

	// Auth
	router.POST("/register", authLimit, h.Auth.Register)
	router.POST("/login", authLimit, h.Auth.Login)
	router.POST("/admin/login", authLimit, h.Auth.AdminLogin)

	// Gateway callbacks
	router.POST("/pagos/webhook", h.Payments.Webhook)
	router.POST("/webhook/mercadopago", h.Payments.Webhook)

	protected := router.Group("/")
	protected.Use(middleware.AuthMiddleware(jwtSecret))
	{
		protected.GET("/me", h.Auth.Me)
		protected.POST("/logout", h.Auth.Logout)

		protected.GET("/carrito", h.Cart.Get)
		protected.POST("/carrito/agregar", h.Cart.Add)
		protected.PUT("/carrito/actualizar", h.Cart.Update)
		protected.DELETE("/carrito/eliminar/:productoId", h.Cart.Remove)
		protected.DELETE("/carrito/vaciar", h.Cart.Clear)

		protected.POST("/pedidos", h.Orders.PlaceOrder)
		protected.GET("/pedidos", h.Orders.ListMine)
		protected.GET("/pedidos/:id", h.Orders.Get)

		protected.POST("/pagos/crear-preferencia", h.Payments.CreatePreference)
		protected.POST("/pagos/verificar", h.Payments.Verify)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtSecret), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/me", h.Auth.Me)
		admin.GET("/dashboard", h.Stats.Dashboard)

		admin.GET("/products", h.Catalog.AdminListProducts)
		admin.GET("/products/:id", h.Catalog.AdminGetProduct)
		admin.POST("/products", h.Catalog.CreateProduct)
		admin.PUT("/products/:id", h.Catalog.UpdateProduct)
		admin.POST("/products/:id", h.Catalog.UpdateProduct) // multipart clients cannot send PUT
		admin.DELETE("/products/:id", h.Catalog.DeleteProduct)
		admin.POST("/upload-image", h.Catalog.UploadImage)

		admin.GET("/categories", h.Catalog.AdminListCategories)
		admin.GET("/categories/:id", h.Catalog.AdminGetCategory)
		admin.POST("/categories", h.Catalog.CreateCategory)
		admin.PUT("/categories/:id", h.Catalog.UpdateCategory)
		admin.DELETE("/categories/:id", h.Catalog.DeleteCategory)

		admin.GET("/orders", h.Orders.AdminList)
		admin.GET("/orders/:id", h.Orders.Get)
		admin.PUT("/orders/:id/status", h.Orders.UpdateStatus)

		admin.GET("/users", h.Users.List)
		admin.GET("/users/:id", h.Users.Get)
		admin.PUT("/users/:id", h.Users.Update)
		admin.DELETE("/users/:id", h.Users.Delete)

		admin.GET("/payment-methods", h.PaymentMethods.AdminList)
		admin.PUT("/payment-methods/:id", h.PaymentMethods.Update)
		admin.POST("/payment-methods/upload-qr", h.PaymentMethods.UploadQR)

		admin.GET("/stats", h.Stats.Stats)
		admin.GET("/stats/sales", h.Stats.SalesByMonth)
		admin.GET("/stats/orders", h.Stats.OrdersByStatus)
	}
}
