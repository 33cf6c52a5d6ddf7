package ticket

import (
	"fmt"
	"strings"
)

// 票据类型前缀
const (
	PrefixTGT = "TGT"
	PrefixST  = "ST"
	PrefixPT  = "PT"
)

// Definition 票据类型定义：前缀、存储名与默认过期策略
type Definition struct {
	Prefix        string
	StorageName   string
	DefaultPolicy func() ExpirationPolicy
}

// Catalog 票据类型目录
// 启动时一次性注册全部票据类型，运行期只读
type Catalog struct {
	defs []*Definition
}

// NewCatalog 创建空目录
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register 注册票据类型定义
func (c *Catalog) Register(def *Definition) {
	c.defs = append(c.defs, def)
}

// Definitions 返回全部票据类型定义
func (c *Catalog) Definitions() []*Definition {
	return c.defs
}

// FindByPrefix 按前缀查找票据类型定义
func (c *Catalog) FindByPrefix(prefix string) (*Definition, error) {
	for _, def := range c.defs {
		if def.Prefix == prefix {
			return def, nil
		}
	}
	return nil, fmt.Errorf("未注册的票据类型: %s", prefix)
}

// FindByID 根据票据 ID 的前缀段查找票据类型定义
func (c *Catalog) FindByID(id string) (*Definition, error) {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return nil, fmt.Errorf("票据 ID 格式无效: %s", id)
	}
	return c.FindByPrefix(prefix)
}

// DefaultCatalogConfig 默认目录的策略参数
type DefaultCatalogConfig struct {
	TGTPolicy func() ExpirationPolicy
	STPolicy  func() ExpirationPolicy
	PTPolicy  func() ExpirationPolicy
}

// NewDefaultCatalog 构建默认票据目录（TGT/ST/PT）
func NewDefaultCatalog(cfg DefaultCatalogConfig) *Catalog {
	c := NewCatalog()
	c.Register(&Definition{Prefix: PrefixTGT, StorageName: "ticket_granting_tickets", DefaultPolicy: cfg.TGTPolicy})
	c.Register(&Definition{Prefix: PrefixST, StorageName: "service_tickets", DefaultPolicy: cfg.STPolicy})
	c.Register(&Definition{Prefix: PrefixPT, StorageName: "proxy_tickets", DefaultPolicy: cfg.PTPolicy})
	return c
}
