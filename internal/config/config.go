// Package config 应用配置
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Ticket      TicketConfig      `mapstructure:"ticket"`
	Authn       AuthnConfig       `mapstructure:"authn"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Cipher      CipherConfig      `mapstructure:"cipher"`
	TGC         TGCConfig         `mapstructure:"tgc"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DBName    string `mapstructure:"dbname"`
	Charset   string `mapstructure:"charset"`
	ParseTime bool   `mapstructure:"parse_time"`
	Loc       string `mapstructure:"loc"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// TicketConfig 票据配置
type TicketConfig struct {
	// Suffix 票据 ID 后缀（节点标识）
	Suffix string `mapstructure:"suffix"`
	// TGTMaxTimeToLive TGT 硬超时
	TGTMaxTimeToLive time.Duration `mapstructure:"tgt_max_time_to_live"`
	// TGTTimeToKill TGT 空闲超时
	TGTTimeToKill time.Duration `mapstructure:"tgt_time_to_kill"`
	// STTimeToKill ST 有效期
	STTimeToKill time.Duration `mapstructure:"st_time_to_kill"`
	// CleanerInterval 过期票据清扫间隔
	CleanerInterval time.Duration `mapstructure:"cleaner_interval"`
}

// AuthnConfig 认证配置
type AuthnConfig struct {
	// FailureMode 必需处理器失败时的处置模式：closed / open
	FailureMode string `mapstructure:"failure_mode"`
	// MergeRule 属性合并规则：REPLACE / ADD / MERGE
	MergeRule string `mapstructure:"merge_rule"`
	// StaticTokens 静态令牌表（主体 → 令牌）
	StaticTokens map[string]string `mapstructure:"static_tokens"`
}

// ReplicationConfig 服务注册表复制配置
type ReplicationConfig struct {
	// Mode 复制模式：active-active / active-passive
	Mode string `mapstructure:"mode"`
	// ResyncInterval 周期性全量调和间隔，0 表示不启用
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// CipherConfig 票据载荷加密配置
type CipherConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Key 32 字节密钥的十六进制表示
	Key string `mapstructure:"key"`
}

// TGCConfig 票据授予 Cookie 配置
type TGCConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

// Load 加载配置
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 支持环境变量覆盖
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults() {
	// 服务器默认配置
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")

	// 数据库默认配置
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.user", "postgres")
	viper.SetDefault("database.postgres.password", "")
	viper.SetDefault("database.postgres.dbname", "sso_center")
	viper.SetDefault("database.postgres.sslmode", "disable")

	// Redis 默认配置
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.call_timeout", "3s")

	// 票据默认配置
	viper.SetDefault("ticket.tgt_max_time_to_live", "8h")
	viper.SetDefault("ticket.tgt_time_to_kill", "2h")
	viper.SetDefault("ticket.st_time_to_kill", "5m")
	viper.SetDefault("ticket.cleaner_interval", "1m")

	// 认证默认配置
	viper.SetDefault("authn.failure_mode", "closed")
	viper.SetDefault("authn.merge_rule", "MERGE")

	// 复制默认配置
	viper.SetDefault("replication.mode", "active-passive")
	viper.SetDefault("replication.resync_interval", "0s")

	// TGC 默认配置
	viper.SetDefault("tgc.issuer", "sso-center")
	viper.SetDefault("tgc.expiry", "8h")
}
