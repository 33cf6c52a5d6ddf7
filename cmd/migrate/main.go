// Package main 数据库迁移工具
package main

import (
	"log"

	"github.com/pu-ac-cn/sso-center/internal/config"
	"github.com/pu-ac-cn/sso-center/internal/database"
	"github.com/pu-ac-cn/sso-center/internal/model"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库连接
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	log.Println("数据库连接成功")

	// 执行迁移
	log.Println("开始执行数据库迁移...")

	models := []any{
		&model.User{},
		&model.RegisteredServiceRow{},
	}

	for _, m := range models {
		if err := database.AutoMigrate(m); err != nil {
			log.Fatalf("迁移失败: %v", err)
		}
	}

	log.Println("数据库迁移完成！")

	// 打印创建的表
	log.Println("已创建/更新的表:")
	log.Println("  - users (用户表)")
	log.Println("  - registered_services (注册服务表)")
}
