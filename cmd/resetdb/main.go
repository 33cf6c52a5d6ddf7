package main

import (
	"context"
	"flag"
	"log"

	"github.com/pu-ac-cn/sso-center/internal/cipher"
	"github.com/pu-ac-cn/sso-center/internal/config"
	"github.com/pu-ac-cn/sso-center/internal/database"
	"github.com/pu-ac-cn/sso-center/internal/logger"
	"github.com/pu-ac-cn/sso-center/internal/model"
	"github.com/pu-ac-cn/sso-center/internal/redis"
	"github.com/pu-ac-cn/sso-center/internal/registry"
	"github.com/pu-ac-cn/sso-center/internal/ticket"
)

// 一个只清理本项目数据的重置工具：
// - 默认按依赖顺序 Drop 表，然后可选地 AutoMigrate 重建；
// - 同时清空 Redis 中的全部票据；
// - 仅影响本项目的业务表与票据键，不会删除数据库、用户或其它表。
// 用法：
//   go run ./cmd/resetdb -force
// 可选参数：
//   -recreate  重建表（默认 true）
//   -force     必须为 true 才会执行（安全开关）
func main() {
	recreate := flag.Bool("recreate", true, "是否在清空后重建表")
	force := flag.Bool("force", false, "确认执行清空操作")
	flag.Parse()

	if !*force {
		log.Fatal("为避免误操作，请加上 -force 参数：go run ./cmd/resetdb -force")
	}

	// 加载配置并连接数据库
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()

	db := database.GetDB()

	// 按依赖顺序 Drop 表
	tables := []any{
		&model.RegisteredServiceRow{},
		&model.User{},
	}
	for _, t := range tables {
		if err := db.Migrator().DropTable(t); err != nil {
			log.Printf("忽略 Drop 表错误（可能不存在）: %v", err)
		}
	}
	log.Println("业务表已清空")

	// 可选重建
	if *recreate {
		for _, t := range tables {
			if err := database.AutoMigrate(t); err != nil {
				log.Fatalf("重建表失败: %v", err)
			}
		}
		log.Println("业务表已重建")
	}

	// 清空 Redis 中的票据
	if err := redis.Init(&cfg.Redis); err != nil {
		log.Printf("忽略 Redis 连接失败，跳过票据清理: %v", err)
		return
	}
	defer redis.Close()

	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync()

	catalog := ticket.NewDefaultCatalog(ticket.DefaultCatalogConfig{
		TGTPolicy: func() ticket.ExpirationPolicy { return ticket.NeverExpiresPolicy{} },
		STPolicy:  func() ticket.ExpirationPolicy { return ticket.NeverExpiresPolicy{} },
		PTPolicy:  func() ticket.ExpirationPolicy { return ticket.NeverExpiresPolicy{} },
	})
	tickets := registry.NewRedisTicketRegistry(redis.GetClient(), catalog, cipher.NoOpExecutor{}, cfg.Redis.CallTimeout, zlog)
	if err := tickets.DropAll(context.Background()); err != nil {
		log.Fatalf("清空票据失败: %v", err)
	}
	log.Println("票据已清空")
}
