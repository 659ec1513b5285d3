package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gestock/gestock-api/internal/auth"
	"github.com/gestock/gestock-api/internal/config"
	"github.com/gestock/gestock-api/internal/constants"
	"github.com/gestock/gestock-api/internal/database"
	"github.com/gestock/gestock-api/internal/handlers"
	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/middleware"
	"github.com/gestock/gestock-api/internal/models"
	"github.com/gestock/gestock-api/internal/services"
	"github.com/gestock/gestock-api/pkg/cache"
)

type Application struct {
	config        *config.Config
	logger        *zap.Logger
	server        *http.Server
	keycloakAdmin *keycloak.AdminClient
	version       string
}

func New(cfg *config.Config, logger *zap.Logger, version string) *Application {
	return &Application{
		config:  cfg,
		logger:  logger,
		version: version,
	}
}

func (app *Application) Initialize(ctx context.Context) error {
	app.logger.Info("Initializing database connection",
		zap.String("host", app.config.Database.Host),
		zap.Int("port", app.config.Database.Port),
		zap.String("database", app.config.Database.DBName))

	db, err := database.Connect(app.config.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	app.logger.Info("Database connected and migrated")

	redisClient, err := database.ConnectRedis(app.config.Redis)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	app.logger.Info("Redis connected successfully")

	if app.config.Keycloak.URL == "" {
		return fmt.Errorf("keycloak URL is required (set GESTOCK_KEYCLOAK_URL)")
	}

	app.keycloakAdmin = keycloak.NewAdminClient(
		app.config.Keycloak.URL,
		app.config.Keycloak.AdminRealm,
		app.config.Keycloak.Realm,
		app.config.Keycloak.AdminClientID,
		app.config.Keycloak.AdminUser,
		app.config.Keycloak.AdminPass,
		app.logger,
	)

	issuerURL := auth.KeycloakIssuerURL(app.config.Keycloak.URL, app.config.Keycloak.Realm)
	verifier, err := auth.NewVerifier(ctx, issuerURL, app.config.JWT.ResourceID, app.config.JWT.PrincipalClaim, app.logger)
	if err != nil {
		return fmt.Errorf("OIDC provider configuration failed: %w", err)
	}

	directoryCache := cache.NewRedisCache(redisClient, app.config.Redis.Prefix)
	userService := services.NewUserService(db, app.keycloakAdmin, directoryCache, app.logger)
	roleSyncService := services.NewRoleSyncService(db, app.keycloakAdmin, directoryCache, app.logger)

	router := app.setupRouter(db, verifier, userService, roleSyncService)

	app.server = &http.Server{
		Addr:         ":" + app.config.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(app.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(app.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(app.config.Server.IdleTimeout) * time.Second,
	}

	app.logger.Info("Application initialization completed",
		zap.String("server_address", app.server.Addr),
		zap.Int("routes_configured", len(router.Routes())))

	return nil
}

func (app *Application) setupRouter(db *gorm.DB, verifier *auth.Verifier, userService *services.UserService, roleSyncService *services.RoleSyncService) *gin.Engine {
	if app.config.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(app.logger))
	router.Use(middleware.Recovery(app.logger))
	router.Use(middleware.CORS(app.config.CORS.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSize(constants.MaxRequestSize))

	healthHandler := handlers.NewHealthHandler(db, app.keycloakAdmin, app.logger, app.version)
	adminHandler := handlers.NewAdminUsersHandler(userService, roleSyncService, app.logger)
	profileHandler := handlers.NewProfileHandler(userService, app.logger)

	router.GET(constants.PathHealth, healthHandler.Health)
	router.GET(constants.PathHealthKeycloak, healthHandler.KeycloakHealth)
	router.GET(constants.PathSwagger, ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group(constants.APIBasePath)
	api.Use(middleware.StandardAPIRateLimit(app.logger))
	api.Use(middleware.AuthRequired(middleware.NewTokenVerifier(verifier), app.logger))
	api.Use(middleware.UserProvisioning(userService, app.logger))

	api.GET(constants.PathProfile, profileHandler.GetProfile)
	api.PUT(constants.PathProfile, profileHandler.UpdateProfile)
	api.PUT(constants.PathPassword, profileHandler.UpdatePassword)

	adminAuthority := auth.Authority(models.RoleAdministrator.DisplayName())
	admin := api.Group("")
	admin.Use(middleware.AuthorityRequired(adminAuthority))

	admin.GET(constants.PathAdminUsers, adminHandler.ListUsers)
	admin.POST(constants.PathAdminUsers, adminHandler.CreateUser)
	admin.PUT(constants.PathAdminUsersToggleStatus, adminHandler.ToggleUserStatus)
	admin.PUT(constants.PathAdminUsersResetPass, adminHandler.ResetUserPassword)
	admin.DELETE(constants.PathAdminUsersID, adminHandler.DeleteUser)
	admin.GET(constants.PathAdminUsersRoles, adminHandler.GetUserRoles)
	admin.POST(constants.PathAdminUsersRoles, adminHandler.AssignRole)
	admin.DELETE(constants.PathAdminUsersRole, adminHandler.RemoveRole)

	return router
}

func (app *Application) Start() error {
	app.logger.Info("Server ready",
		zap.String("port", app.config.Server.Port),
		zap.String("environment", app.config.Environment))

	if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error("Server failed to start", zap.Error(err))
		return err
	}
	return nil
}

func (app *Application) Shutdown(ctx context.Context) error {
	app.logger.Info("HTTP server shutting down gracefully")
	err := app.server.Shutdown(ctx)
	if err != nil {
		app.logger.Error("Error during server shutdown", zap.Error(err))
	} else {
		app.logger.Info("HTTP server shutdown completed")
	}
	return err
}
