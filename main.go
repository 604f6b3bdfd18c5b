package main

import (
	"context"
	"errors"
	"haters/auth"
	"haters/cards"
	"haters/config"
	"haters/crypto"
	"haters/game"
	"haters/logger"
	"haters/migrations"
	"haters/storage"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

type authRoutes interface {
	SignupHandler(*gin.Context)
	LoginHandler(*gin.Context)
	GuestHandler(*gin.Context)
	LogoutHandler(*gin.Context)
	RefreshSessionHandler(*gin.Context)
	ProfileHandler(*gin.Context)
	RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc
}

type gameRoutes interface {
	CreateGameHandler(*gin.Context)
	DiscoveryHandler(*gin.Context)
	DecksHandler(*gin.Context)
	JoinGameHandler(*gin.Context)
}

func RegisterRoutes(r *gin.Engine, authHandler authRoutes, gameHandler gameRoutes) {
	{
		auth := r.Group("/auth")
		auth.POST("/signup", authHandler.SignupHandler)
		auth.POST("/login", authHandler.LoginHandler)
		auth.POST("/guest", authHandler.GuestHandler)
		auth.POST("/logout", authHandler.LogoutHandler)
		auth.GET("/refresh", authHandler.RefreshSessionHandler)
	}

	r.GET("/profile/:id", authHandler.ProfileHandler)

	{
		gameGroup := r.Group("/game")
		gameGroup.POST("/create", authHandler.RequireAuthMiddleware(time.Second*2), gameHandler.CreateGameHandler)
		gameGroup.GET("/discovery", gameHandler.DiscoveryHandler)
		gameGroup.GET("/decks", gameHandler.DecksHandler)
		// the socket authenticates itself with the identify opcode
		gameGroup.GET("/ws/:roomid", gameHandler.JoinGameHandler)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Setup(cfg.Debug, cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := migrations.Migrate(cfg.PostgresURL); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	pgRepo, err := storage.NewPostgresRepo(context.Background(), cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to postgres")
	}
	defer pgRepo.Close()

	catalog, err := cards.LoadCatalog(cfg.DecksDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DecksDir).Msg("could not load card packs")
	}
	log.Info().Int("packs", catalog.Len()).Msg("card packs loaded")

	passwordHasher := crypto.NewArgon2idHasher(cfg.HashCost)
	tokenManager := crypto.NewJWTManager(cfg.JWTKey, cfg.TokenAge)

	authService := auth.NewService(pgRepo, passwordHasher, tokenManager)
	authHandler := auth.NewAuthHandler(authService, cfg.TokenAge)

	lobby := game.NewLobby(game.NewIdGen(), game.RoomDeps{
		Catalog:  catalog,
		Recorder: pgRepo,
		Tickers:  game.NewTickerGen(),
	})
	gameHandler := game.NewGameHandler(lobby, catalog, authService, cfg.HeartbeatInterval, cfg.AllowedOrigins)

	r := CreateServer(cfg.AllowedOrigins)
	RegisterRoutes(r, authHandler, gameHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	<-sigCh
	log.Info().Int("rooms", lobby.Len()).Msg("SIGTERM or SIGINT received, closing rooms before shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := lobby.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("rooms did not close in time")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	log.Info().Msg("shut down")
}
