// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"docchat-go/internal/config"
	"docchat-go/internal/handler"
	"docchat-go/internal/middleware"
	"docchat-go/internal/pipeline"
	"docchat-go/internal/repository"
	"docchat-go/internal/service"
	"docchat-go/pkg/database"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/kafka"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/tika"
	"docchat-go/pkg/token"
	"docchat-go/pkg/vectorstore"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化基础设施：数据库、Redis、对象存储、向量索引、消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storageClient := storage.NewClient(cfg.MinIO)
	store, err := vectorstore.NewStore(cfg.Elasticsearch)
	if err != nil {
		log.Fatalf("向量索引初始化失败: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	guestService := service.NewGuestService(documentRepo, store, storageClient)
	userService := service.NewUserService(userRepo, guestService, jwtManager)
	documentService := service.NewDocumentService(documentRepo, storageClient, tikaClient, store)
	chatService := service.NewChatService(embeddingClient, store, llmClient)

	// 6. 初始化文档处理管道 (Processor) 并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(tikaClient, embeddingClient, store, storageClient, documentRepo)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 启动访客会话后台清理任务
	guestService.StartJanitor(10 * time.Minute)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	guestHandler := handler.NewGuestHandler(guestService)
	documentHandler := handler.NewDocumentHandler(documentService, guestService)
	chatHandler := handler.NewChatHandler(chatService)

	optionalAuth := middleware.OptionalAuth(jwtManager, userService)
	requireAuth := middleware.AuthMiddleware(jwtManager, userService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.POST("/refreshToken", userHandler.RefreshToken)

			authed := users.Group("/")
			authed.Use(requireAuth)
			{
				authed.GET("/me", userHandler.Profile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// 访客会话路由
		guest := apiV1.Group("/guest")
		guest.Use(optionalAuth)
		{
			guest.POST("/session", guestHandler.StartSession)
			guest.DELETE("/session", guestHandler.EndSession)
		}

		// 文档路由：登录用户和访客会话均可访问
		documents := apiV1.Group("/documents")
		documents.Use(optionalAuth)
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.DELETE("/:filename", documentHandler.Delete)
		}

		// 问答路由
		chat := apiV1.Group("/chat")
		chat.Use(optionalAuth)
		{
			chat.POST("", chatHandler.Chat)
			chat.POST("/stream", chatHandler.ChatStream)
		}
	}

	// WebSocket 问答入口
	r.GET("/ws/chat", optionalAuth, chatHandler.HandleWS)

	// 10. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
