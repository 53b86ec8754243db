package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"teamup/blob"
	"teamup/config"
	"teamup/database"
	"teamup/handlers"
	"teamup/identity"
	"teamup/logging"
	"teamup/middleware"
	"teamup/notify"
	"teamup/routes"
	"teamup/session"
	"teamup/store"
	"teamup/websocket"
)

const (
	sessionSweepInterval = time.Minute
	limiterCleanup       = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatalf("configuration: %v", err)
	}

	logging.Init(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		JSON:    cfg.IsRelease(),
		Service: "teamup-api",
	})
	log := logging.Logger

	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== STORE =====
	var (
		st          *store.Store
		mongoClient *mongo.Client
	)
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongodb: %v", err)
		}
		mongoClient = client
		if err := database.EnsureIndexes(ctx, db); err != nil {
			log.WithError(err).Warn("index creation failed")
		}
		st = store.NewMongo(db)
	default:
		log.Warn("using the in-memory store, data is lost on restart")
		st = store.NewMemory()
	}

	// ===== IDENTITY =====
	idp := identity.NewClient(cfg.IdentityBaseURL, cfg.FirebaseAPIKey, cfg.IdentityTimeout)
	var directory handlers.MemberDirectory
	if cfg.FirebaseServiceAccount != "" {
		admin, err := identity.NewAdmin(ctx, cfg.IdentityBaseURL, []byte(cfg.FirebaseServiceAccount))
		if err != nil {
			log.WithError(err).Warn("service account rejected, member emails disabled")
		} else {
			directory = admin
		}
	}

	// ===== UPLOADS =====
	var uploader handlers.Uploader
	if cfg.CloudinaryURL != "" {
		backend, err := blob.NewCloudinary(cfg.CloudinaryURL, cfg.StorageFolder)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		uploader = blob.NewService(backend, cfg.UploadMaxBytes)
	} else {
		log.Warn("CLOUDINARY_URL not set, uploads disabled")
	}

	// ===== SESSIONS =====
	sessions := session.NewStore(cfg.SessionTTL)
	go sessions.Run(ctx, sessionSweepInterval)

	// ===== PUSH =====
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		if cfg.IsRelease() {
			log.Warn("VAPID keys not set, web push disabled")
		} else {
			public, private, err := notify.GenerateVAPIDKeys()
			if err != nil {
				log.WithError(err).Warn("generate VAPID keys")
			} else {
				cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey = public, private
				log.WithField("publicKey", public).Warn("generated temporary VAPID keys, set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY for stable subscriptions")
			}
		}
	}
	var pusher notify.Pusher
	if cfg.VAPIDPrivateKey != "" {
		pusher = &notify.WebPusher{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}
	}
	notifier := notify.New(st.Notifications, st.PushSubscriptions, pusher)

	// ===== WEBSOCKET =====
	secret := []byte(cfg.JWTSecret)
	wsManager := websocket.NewManager(
		middleware.TokenAuthenticator(secret, sessions),
		func(ctx context.Context, userID, postID string) bool {
			post, err := st.Posts.Get(ctx, postID)
			return err == nil && post.IsMember(userID)
		},
	)
	go wsManager.Run(ctx)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute)
	go limiter.Run(ctx, limiterCleanup)

	// ===== ROUTER =====
	h := handlers.New(handlers.Deps{
		Store:          st,
		Identity:       idp,
		Directory:      directory,
		Uploader:       uploader,
		Sessions:       sessions,
		Notifier:       notifier,
		Broadcaster:    wsManager,
		JWTSecret:      secret,
		IsAdmin:        cfg.IsAdmin,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		Connections:    wsManager.GetConnectedUsers,
	})
	router := routes.SetupRouter(h, routes.Options{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   secret,
		Sessions:    sessions,
		Limiter:     limiter,
		WebSocket:   wsManager.Handler(),
		VerboseLogs: !cfg.IsRelease(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).WithField("store", cfg.StoreDriver).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	// ===== GRACEFUL SHUTDOWN =====
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	notifier.Wait()
	if mongoClient != nil {
		if err := database.Disconnect(mongoClient); err != nil {
			log.WithError(err).Warn("mongodb disconnect")
		}
	}
	log.Info("server stopped")
}
