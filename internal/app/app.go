package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hbl306/phongtro57-chat/database"
	"github.com/hbl306/phongtro57-chat/internal/auth"
	"github.com/hbl306/phongtro57-chat/internal/config"
	"github.com/hbl306/phongtro57-chat/internal/handlers"
	"github.com/hbl306/phongtro57-chat/internal/logger"
	"github.com/hbl306/phongtro57-chat/internal/models"
	"github.com/hbl306/phongtro57-chat/internal/repositories"
	repoChat "github.com/hbl306/phongtro57-chat/internal/repositories/chat"
	"github.com/hbl306/phongtro57-chat/internal/routes"
	"github.com/hbl306/phongtro57-chat/internal/services"
	chatservice "github.com/hbl306/phongtro57-chat/internal/services/chat"
	"github.com/hbl306/phongtro57-chat/ws"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Run boots the chat backend: config, logger, database, routes, server.
func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("logger initialized", "env", cfg.Server.Env)

	gormDB, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("database unavailable", "error", err)
	}
	logger.Info("database connected")

	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("migration failed", "error", err)
	}
	if err := seedFirstAgent(gormDB); err != nil {
		logger.Fatal("failed to seed first support agent", "error", err)
	}

	ginRouter := SetupRouter(cfg, gormDB)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("server starting", "address", address)
	if err := ginRouter.Run(address); err != nil {
		logger.Fatal("server startup error", "error", err)
	}
}

// SetupRouter wires repositories, services, handlers and the websocket hub
// onto a gin engine. Shared with the test server.
func SetupRouter(cfg *config.Config, gormDB *gorm.DB) *gin.Engine {
	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	userRepo := repositories.NewUserRepository(gormDB)
	conversationRepo := repoChat.NewConversationRepository(gormDB)
	participantRepo := repoChat.NewParticipantRepository(gormDB)
	messageRepo := repoChat.NewMessageRepository(gormDB)

	identityService := services.NewIdentityService(userRepo, cfg.JWT.Secret)
	chatService := chatservice.NewChatService(conversationRepo, participantRepo, messageRepo, userRepo)
	chatService.MessagePageSize = cfg.Chat.MessagePageSize
	chatService.InboxPageSize = cfg.Chat.InboxPageSize

	chatHandler := handlers.NewChatHandler(chatService)

	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, identityService, chatService)

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())

	routes.RegisterRoutes(ginRouter, identityService, chatHandler, wsHandler)

	return ginRouter
}

// seedFirstAgent creates a support agent account on an empty install so the
// admin inbox is reachable without manual SQL. Controlled by env vars; does
// nothing when an agent already exists or the vars are unset.
func seedFirstAgent(db *gorm.DB) error {
	phone := os.Getenv("FIRST_AGENT_PHONE")
	password := os.Getenv("FIRST_AGENT_PASSWORD")
	if phone == "" || password == "" {
		return nil
	}

	users := repositories.NewUserRepository(db)
	if _, err := users.FindByPhone(phone); err == nil {
		return nil
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return err
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAgent).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	agent := &models.User{
		BaseModel:    models.BaseModel{ID: uuid.New().String()},
		Phone:        phone,
		Name:         "Support",
		PasswordHash: hash,
		Role:         models.RoleAgent,
		Status:       models.UserStatusActive,
	}
	if err := db.Create(agent).Error; err != nil {
		return err
	}
	logger.Info("seeded first support agent", "phone", phone)
	return nil
}
