package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/auth"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Services bundles everything the HTTP layer dispatches to.
type Services struct {
	Signer        *pkgauth.Signer
	Sessions      session.Checker
	Auth          auth.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Promotions    promotions.Service
	Products      products.Service
	Wishlist      wishlist.Service
	Notifications notifications.Service
	Users         users.Service
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *pkgredis.Client,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg, svc.HTTPMetrics),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	// a nil *redis.Client must not reach the middlewares as a non-nil interface
	var (
		idempotencyStore pkgredis.IdempotencyStore
		counter          middleware.WindowCounter
		readiness        = map[string]controllers.Pinger{"database": dbP}
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		counter = redisClient
		readiness["redis"] = redisClient
	}

	rl := cfg.RateLimit
	loginLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:     "login",
		Window:   rl.LoginWindow,
		PerIP:    rl.LoginIPLimit,
		PerEmail: rl.LoginEmailLimit,
	}, counter, logg)
	registerLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:     "register",
		Window:   rl.RegisterWindow,
		PerIP:    rl.RegisterIPLimit,
		PerEmail: rl.RegisterEmailLimit,
	}, counter, logg)
	checkoutLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:    "checkout",
		Window:  rl.CheckoutWindow,
		PerUser: rl.CheckoutUserLimit,
	}, counter, logg)

	replay := func(ttl time.Duration, required bool) func(http.Handler) http.Handler {
		return middleware.Idempotent(idempotencyStore, middleware.IdempotencyPolicy{TTL: ttl, Required: required}, logg)
	}
	replayDay, replayWeek := replay(24*time.Hour, false), replay(7*24*time.Hour, false)

	gatherer := svc.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	// public storefront
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", authcontrollers.AuthLogin(svc.Auth, logg))
			r.With(registerLimit, replayDay).Post("/register", authcontrollers.AuthRegister(svc.Auth, logg))
			r.Post("/refresh", authcontrollers.AuthRefresh(svc.Auth, logg))
			r.Post("/logout", authcontrollers.AuthLogout(svc.Auth, logg))
		})

		r.Get("/products", controllers.ListProducts(svc.Products, logg))
		r.Get("/products/{productId}", controllers.GetProduct(svc.Products, logg))
		r.Get("/promotions/active", controllers.ActivePromotions(svc.Promotions, logg))
		r.Post("/promotions/validate", controllers.ValidatePromotion(svc.Promotions, logg))
		r.Get("/orders/track/{code}", ordercontrollers.Track(svc.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(svc.Signer, svc.Sessions, logg))

			r.Route("/me", func(r chi.Router) {
				r.Get("/", controllers.GetProfile(svc.Users, logg))
				r.Patch("/", controllers.UpdateProfile(svc.Users, logg))
				r.Post("/password", authcontrollers.AuthChangePassword(svc.Auth, logg))
				r.Get("/addresses", controllers.ListAddresses(svc.Users, logg))
				r.With(replayDay).Post("/addresses", controllers.AddAddress(svc.Users, logg))
				r.Patch("/addresses/{addressId}", controllers.UpdateAddress(svc.Users, logg))
				r.Delete("/addresses/{addressId}", controllers.DeleteAddress(svc.Users, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(svc.Cart, logg))
				r.Delete("/", cartcontrollers.CartClear(svc.Cart, logg))
				r.With(replayDay).Post("/items", cartcontrollers.CartAddItem(svc.Cart, logg))
				r.Put("/items/{productId}", cartcontrollers.CartUpdateItem(svc.Cart, logg))
				r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(svc.Cart, logg))
				r.Post("/discount", cartcontrollers.CartApplyDiscount(svc.Cart, logg))
				r.Delete("/discount", cartcontrollers.CartRemoveDiscount(svc.Cart, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(checkoutLimit, replay(24*time.Hour, true)).Post("/", ordercontrollers.Place(svc.Checkout, logg))
				r.Get("/", ordercontrollers.List(svc.Orders, logg))
				r.Get("/stats", ordercontrollers.Stats(svc.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
				r.With(replayWeek).Post("/{orderId}/cancel", ordercontrollers.Cancel(svc.Orders, logg))
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.WishlistList(svc.Wishlist, logg))
				r.Post("/{productId}", controllers.WishlistAddItem(svc.Wishlist, logg))
				r.Delete("/{productId}", controllers.WishlistRemoveItem(svc.Wishlist, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(svc.Signer, svc.Sessions, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(svc.Orders, logg))
			r.Get("/stats", controllers.AdminOrderStats(svc.Orders, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(svc.Orders, logg))
			r.With(replayWeek).Patch("/{orderId}/status", controllers.AdminUpdateOrderStatus(svc.Orders, logg))
			r.With(replayWeek).Patch("/{orderId}/payment-status", controllers.AdminUpdatePaymentStatus(svc.Orders, logg))
			r.Delete("/{orderId}", controllers.AdminDeleteOrder(svc.Orders, logg))
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Get("/", controllers.AdminListPromotions(svc.Promotions, logg))
			r.With(replayDay).Post("/", controllers.AdminCreatePromotion(svc.Promotions, logg))
			r.Get("/{promotionId}", controllers.AdminGetPromotion(svc.Promotions, logg))
			r.Put("/{promotionId}", controllers.AdminUpdatePromotion(svc.Promotions, logg))
			r.Delete("/{promotionId}", controllers.AdminDeletePromotion(svc.Promotions, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.With(replayDay).Post("/", controllers.AdminCreateProduct(svc.Products, logg))
			r.Put("/{productId}", controllers.AdminUpdateProduct(svc.Products, logg))
			r.Delete("/{productId}", controllers.AdminDeleteProduct(svc.Products, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", controllers.AdminListUsers(svc.Users, logg))
			r.With(replayDay).Post("/", controllers.AdminCreateUser(svc.Users, logg))
			r.Get("/{userId}", controllers.AdminGetUser(svc.Users, logg))
			r.Patch("/{userId}", controllers.AdminUpdateUser(svc.Users, logg))
			r.Delete("/{userId}", controllers.AdminDeleteUser(svc.Users, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
		})
	})

	return r
}
