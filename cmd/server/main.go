package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-center/internal/authn"
	"github.com/pu-ac-cn/sso-center/internal/cipher"
	"github.com/pu-ac-cn/sso-center/internal/config"
	"github.com/pu-ac-cn/sso-center/internal/database"
	"github.com/pu-ac-cn/sso-center/internal/handler"
	"github.com/pu-ac-cn/sso-center/internal/logger"
	"github.com/pu-ac-cn/sso-center/internal/middleware"
	"github.com/pu-ac-cn/sso-center/internal/model"
	"github.com/pu-ac-cn/sso-center/internal/redis"
	"github.com/pu-ac-cn/sso-center/internal/registry"
	"github.com/pu-ac-cn/sso-center/internal/repository"
	"github.com/pu-ac-cn/sso-center/internal/services"
	"github.com/pu-ac-cn/sso-center/internal/sso"
	"github.com/pu-ac-cn/sso-center/internal/ticket"
	"github.com/pu-ac-cn/sso-center/pkg/response"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if cfg.TGC.Secret == "" {
		log.Fatalf("未配置 tgc.secret，拒绝启动")
	}

	// 初始化日志
	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync()

	// 初始化数据库连接
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	log.Println("数据库连接成功")

	// 初始化 Redis 连接
	if err := redis.Init(&cfg.Redis); err != nil {
		log.Fatalf("初始化 Redis 失败: %v", err)
	}
	defer redis.Close()
	log.Println("Redis 连接成功")

	// 自动迁移数据库表
	if err := database.AutoMigrate(
		&model.User{},
		&model.RegisteredServiceRow{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库迁移完成")

	// 票据目录：组合策略按会话类型分发，普通会话同时受硬超时与
	// 空闲超时约束，代登录会话只给短时硬超时；ST 为短时硬超时
	catalog := ticket.NewDefaultCatalog(ticket.DefaultCatalogConfig{
		TGTPolicy: func() ticket.ExpirationPolicy {
			return ticket.CompositeExpirationPolicy{
				Policies: map[string]ticket.ExpirationPolicy{
					ticket.SessionTypeDefault: ticket.CompositeExpirationPolicy{
						Policies: map[string]ticket.ExpirationPolicy{
							"hard": ticket.HardTimeoutExpirationPolicy{TTL: cfg.Ticket.TGTMaxTimeToLive},
							"idle": ticket.TimeoutExpirationPolicy{TimeToKill: cfg.Ticket.TGTTimeToKill},
						},
					},
					ticket.SessionTypeSurrogate: ticket.HardTimeoutExpirationPolicy{TTL: cfg.Ticket.TGTTimeToKill},
				},
			}
		},
		STPolicy: func() ticket.ExpirationPolicy {
			return ticket.HardTimeoutExpirationPolicy{TTL: cfg.Ticket.STTimeToKill}
		},
		PTPolicy: func() ticket.ExpirationPolicy {
			return ticket.HardTimeoutExpirationPolicy{TTL: cfg.Ticket.STTimeToKill}
		},
	})

	// 票据载荷加密
	var executor cipher.Executor = cipher.NoOpExecutor{}
	if cfg.Cipher.Enabled {
		executor, err = cipher.NewSecretboxExecutor(cfg.Cipher.Key)
		if err != nil {
			log.Fatalf("初始化票据加密失败: %v", err)
		}
	}

	// 票据注册表与过期清扫器
	ticketRegistry := registry.NewRedisTicketRegistry(redis.GetClient(), catalog, executor, cfg.Redis.CallTimeout, zlog)
	cleaner := registry.NewCleaner(ticketRegistry, cfg.Ticket.CleanerInterval, zlog)
	cleaner.Start()
	defer cleaner.Stop()

	// 认证系统
	userRepo := repository.NewUserRepository(database.GetDB())
	handlers := []authn.Handler{authn.NewPasswordHandler(userRepo)}
	if len(cfg.Authn.StaticTokens) > 0 {
		handlers = append(handlers, authn.NewStaticTokenHandler(cfg.Authn.StaticTokens))
	}
	manager := authn.NewTransactionManager(authn.TransactionManagerConfig{
		Handlers:    handlers,
		FailureMode: authn.FailureMode(cfg.Authn.FailureMode),
	}, zlog)
	support := authn.NewSystemSupport(manager, authn.NewDefaultPrincipalElection(authn.MergeRule(cfg.Authn.MergeRule)))

	// 服务注册表：本地 GORM 存储 + Redis 分布式缓存复制
	localRegistry := services.NewGormServiceRegistry(database.GetDB())
	cacheManager := services.NewRedisCacheManager(redis.GetClient(), cfg.Redis.CallTimeout)
	strategy := services.NewReplicationStrategy(cacheManager, services.ReplicationMode(cfg.Replication.Mode), zlog)
	serviceRegistry := services.NewReplicatedServiceRegistry(localRegistry, strategy)
	resyncer := services.NewResyncer(strategy, localRegistry, cfg.Replication.ResyncInterval, zlog)
	resyncer.Start()
	defer resyncer.Stop()

	// SSO 中心服务
	center := sso.NewCentralSSOService(ticketRegistry, serviceRegistry, support, catalog, sso.Config{
		TicketSuffix: cfg.Ticket.Suffix,
	}, zlog)
	tgcSigner := sso.NewTGCSigner([]byte(cfg.TGC.Secret), cfg.TGC.Issuer, cfg.TGC.Expiry)

	// 初始化 Handler
	ssoHandler := handler.NewSSOHandler(center, tgcSigner, int(cfg.TGC.Expiry.Seconds()))
	serviceHandler := handler.NewServiceHandler(serviceRegistry)
	userHandler := handler.NewUserHandler(userRepo)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()

	// 全局中间件
	router.Use(middleware.Logger(zlog))
	router.Use(middleware.Recovery(zlog))
	router.Use(middleware.CORS())

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		// 检查数据库连接
		dbStatus := "ok"
		if err := database.Ping(); err != nil {
			dbStatus = "error"
		}

		// 检查 Redis 连接
		redisStatus := "ok"
		redisClient := redis.GetClient()
		if redisClient == nil {
			redisStatus = "error"
		} else if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error"
		}

		response.Success(c, gin.H{
			"status":   "ok",
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"redis":    redisStatus,
		})
	})

	// API 路由组
	api := router.Group("/api/v1")
	{
		// 用户路由（公开）
		users := api.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.GET("/:id", userHandler.Get)
		}

		// SSO 路由
		ssoGroup := api.Group("/sso")
		{
			ssoGroup.POST("/login", ssoHandler.Login)
			ssoGroup.POST("/validate", ssoHandler.Validate)

			// 需要登录态的路由
			authRequired := ssoGroup.Group("")
			authRequired.Use(middleware.TGCAuth(tgcSigner))
			{
				authRequired.POST("/tickets", ssoHandler.Grant)
				authRequired.POST("/logout", ssoHandler.Logout)
			}
		}

		// 注册服务管理路由
		svcGroup := api.Group("/services")
		{
			svcGroup.GET("", serviceHandler.List)
			svcGroup.GET("/match", serviceHandler.Match)
			svcGroup.GET("/:id", serviceHandler.Get)
			svcGroup.POST("", serviceHandler.Save)
			svcGroup.DELETE("/:id", serviceHandler.Delete)
		}
	}

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		log.Printf("服务启动，监听地址: %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，等待 5 秒
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务关闭失败: %v", err)
	}

	// 停止后台任务并关闭连接
	cleaner.Stop()
	resyncer.Stop()
	database.Close()
	redis.Close()

	log.Println("服务已关闭")
}
