package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rt, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "api", Redis: true})
	if err != nil {
		bootstrap.Fatal(context.Background(), nil, "api bootstrap failed", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "api close", err)
		}
	}()
	cfg, logg := rt.Config, rt.Logger

	services, err := buildServices(rt)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to wire services", err)
	}

	// PORT is set by the hosting platform and wins over the configured port
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, rt.DB, rt.Redis, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := rt.SignalContext(context.Background())
	defer stop()
	ctx = logg.WithField(ctx, "addr", server.Addr)
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(rt *bootstrap.Runtime) (routes.Services, error) {
	cfg, logg, dbClient := rt.Config, rt.Logger, rt.DB
	conn := dbClient.DB()
	orderMetrics := metrics.NewOrderMetrics(rt.Registry)

	signer, err := pkgauth.NewSigner(cfg.JWT)
	if err != nil {
		return routes.Services{}, err
	}
	sessions, err := session.NewStore(rt.Redis, cfg.JWT)
	if err != nil {
		return routes.Services{}, err
	}

	userRepo := users.NewRepository(conn)
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		Sessions:       sessions,
		Signer:         signer,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	userService, err := users.NewService(users.ServiceParams{
		Users:          userRepo,
		Addresses:      users.NewAddressRepository(conn),
		Tx:             dbClient,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	productRepo := product.NewRepository(conn)
	promotionRepo := promotions.NewRepository(conn)
	validator := promotions.NewValidator(promotionRepo)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)

	productService, err := product.NewService(productRepo)
	if err != nil {
		return routes.Services{}, err
	}
	promotionService, err := promotions.NewService(promotionRepo, validator)
	if err != nil {
		return routes.Services{}, err
	}
	cartService, err := cart.NewService(cartRepo, productRepo, validator, dbClient)
	if err != nil {
		return routes.Services{}, err
	}
	checkoutService, err := checkout.NewService(checkout.Deps{
		Tx:         dbClient,
		Carts:      cartRepo,
		Products:   productRepo,
		Promotions: validator,
		Orders:     orderRepo,
		Shipping:   pricing.NewShippingPolicy(cfg.Pricing),
		Outbox:     publisher,
		Metrics:    orderMetrics,
		Addresses:  userService,
	})
	if err != nil {
		return routes.Services{}, err
	}
	orderService, err := orders.NewService(orderRepo, productRepo, dbClient, publisher, orderMetrics)
	if err != nil {
		return routes.Services{}, err
	}
	wishlistService, err := wishlist.NewService(wishlist.ServiceParams{
		WishlistRepo: wishlist.NewRepository(conn),
		ProductRepo:  productRepo,
	})
	if err != nil {
		return routes.Services{}, err
	}
	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Signer:        signer,
		Sessions:      sessions,
		Auth:          authService,
		Cart:          cartService,
		Checkout:      checkoutService,
		Orders:        orderService,
		Promotions:    promotionService,
		Products:      productService,
		Wishlist:      wishlistService,
		Notifications: notificationService,
		Users:         userService,
		Gatherer:      rt.Registry,
		HTTPMetrics:   metrics.NewHTTPMetrics(rt.Registry),
	}, nil
}
