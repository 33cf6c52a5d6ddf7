// Package sso 单点登录编排：认证、票据签发与校验
package sso

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/sso-center/internal/authn"
	"github.com/pu-ac-cn/sso-center/internal/registry"
	"github.com/pu-ac-cn/sso-center/internal/services"
	"github.com/pu-ac-cn/sso-center/internal/ticket"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTicket 票据无效
	// 对外统一呈现，不区分不存在、已过期与已使用
	ErrInvalidTicket = errors.New("票据无效")
	// ErrUnauthorizedService 服务未注册或访问策略拒绝
	ErrUnauthorizedService = errors.New("服务未注册或禁止访问")
	// ErrServiceMismatch 票据与校验服务不匹配
	ErrServiceMismatch = errors.New("票据与服务不匹配")
	// ErrSSONotParticipating 服务不参与单点登录，必须重新认证
	ErrSSONotParticipating = errors.New("该服务不参与单点登录")
)

// Assertion 服务票据校验断言
// 释放给服务的属性已按该服务的属性释放策略过滤
type Assertion struct {
	Principal       string              `json:"principal"`
	Attributes      map[string][]string `json:"attributes,omitempty"`
	Service         string              `json:"service"`
	AuthenticatedAt string              `json:"authenticated_at"`
}

// Config SSO 服务配置
type Config struct {
	// TicketSuffix 票据 ID 后缀（通常为节点标识）
	TicketSuffix string
}

// CentralSSOService 单点登录中心服务
// 编排认证系统、票据注册表与服务注册表完成登录、授票、验票与登出
type CentralSSOService struct {
	tickets  registry.TicketRegistry
	services services.ServiceRegistry
	authn    *authn.SystemSupport
	catalog  *ticket.Catalog
	suffix   string
	log      *zap.Logger
}

// NewCentralSSOService 创建单点登录中心服务
func NewCentralSSOService(
	tickets registry.TicketRegistry,
	serviceRegistry services.ServiceRegistry,
	support *authn.SystemSupport,
	catalog *ticket.Catalog,
	cfg Config,
	log *zap.Logger,
) *CentralSSOService {
	return &CentralSSOService{
		tickets:  tickets,
		services: serviceRegistry,
		authn:    support,
		catalog:  catalog,
		suffix:   cfg.TicketSuffix,
		log:      log,
	}
}

// Login 认证凭据并签发 TGT
// service 非空时同时签发一张 ST；同一次登录至多产生一张 TGT
func (s *CentralSSOService) Login(ctx context.Context, service string, credentials ...authn.Credential) (*ticket.TicketGrantingTicket, *ticket.ServiceTicket, error) {
	auth, err := s.authn.FinalizeAuthentication(ctx, service, credentials...)
	if err != nil {
		return nil, nil, err
	}

	def, err := s.catalog.FindByPrefix(ticket.PrefixTGT)
	if err != nil {
		return nil, nil, err
	}

	tgt := ticket.NewTicketGrantingTicket(
		ticket.GenerateID(ticket.PrefixTGT, s.suffix),
		auth,
		def.DefaultPolicy(),
	)
	if err := s.tickets.AddTicket(ctx, tgt); err != nil {
		return nil, nil, err
	}

	s.log.Info("签发 TGT",
		zap.String("tgt", tgt.ID),
		zap.String("principal", auth.Principal.ID),
	)

	if service == "" {
		return tgt, nil, nil
	}

	st, err := s.GrantServiceTicket(ctx, tgt.ID, service)
	if err != nil {
		return nil, nil, err
	}
	return tgt, st, nil
}

// GrantServiceTicket 基于有效 TGT 为服务签发 ST
// 服务必须已注册且访问策略放行；不参与 SSO 的服务拒绝基于
// 既有会话授票（调用方应引导重新认证）
func (s *CentralSSOService) GrantServiceTicket(ctx context.Context, tgtID, service string) (*ticket.ServiceTicket, error) {
	tgt, err := registry.GetTicketGrantingTicket(ctx, s.tickets, tgtID)
	if err != nil {
		return nil, s.asInvalidTicket(err, tgtID)
	}

	svc, err := s.services.FindServiceBy(ctx, service)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		s.log.Warn("拒绝为未注册服务授票", zap.String("service", service))
		return nil, ErrUnauthorizedService
	}
	if !svc.AccessStrategy.SSOEnabled {
		return nil, ErrSSONotParticipating
	}
	if !svc.AccessStrategy.Authorized(tgt.Authentication.Principal.Attributes) {
		s.log.Warn("访问策略拒绝授票",
			zap.String("service", service),
			zap.String("principal", tgt.Authentication.Principal.ID),
		)
		return nil, ErrUnauthorizedService
	}

	def, err := s.catalog.FindByPrefix(ticket.PrefixST)
	if err != nil {
		return nil, err
	}

	st := ticket.NewServiceTicket(
		ticket.GenerateID(ticket.PrefixST, s.suffix),
		tgt.ID,
		service,
		def.DefaultPolicy(),
	)
	if err := s.tickets.AddTicket(ctx, st); err != nil {
		return nil, err
	}

	// 子票据登记走注册表的原子入口，并发授票互不覆盖
	if err := s.tickets.AddDescendant(ctx, tgt.ID, st.ID); err != nil {
		return nil, s.asInvalidTicket(err, tgt.ID)
	}
	// 刷新 TGT 的使用记录（空闲超时以此为基准）
	tgt.MarkUsed()
	if err := s.tickets.UpdateTicket(ctx, tgt); err != nil {
		return nil, err
	}

	s.log.Info("签发 ST",
		zap.String("st", st.ID),
		zap.String("tgt", tgt.ID),
		zap.String("service", service),
	)
	return st, nil
}

// ValidateServiceTicket 校验 ST 并返回断言
// 单次使用票据的首次校验即消耗；父 TGT 失效时子票据一并失效
func (s *CentralSSOService) ValidateServiceTicket(ctx context.Context, ticketID, service string) (*Assertion, error) {
	st, err := registry.GetServiceTicket(ctx, s.tickets, ticketID)
	if err != nil {
		return nil, s.asInvalidTicket(err, ticketID)
	}

	if st.Service != service {
		s.log.Warn("票据与服务不匹配",
			zap.String("st", ticketID),
			zap.String("expected", st.Service),
			zap.String("actual", service),
		)
		return nil, ErrServiceMismatch
	}

	// 父 TGT 的有效性决定子票据的有效性
	tgt, err := registry.GetTicketGrantingTicket(ctx, s.tickets, st.TicketGrantingTicketID)
	if err != nil {
		st.SetGrantingTicketExpired()
		_, _ = s.tickets.DeleteTicket(ctx, st.ID)
		return nil, s.asInvalidTicket(err, ticketID)
	}

	// 原子递增使用计数；单次使用票据只有首个校验者拿到计数 1
	count, err := s.tickets.IncrementUses(ctx, st.ID)
	if err != nil {
		return nil, s.asInvalidTicket(err, ticketID)
	}
	if !st.Reusable && count > 1 {
		s.log.Warn("拒绝重复使用单次票据", zap.String("st", ticketID))
		return nil, ErrInvalidTicket
	}
	st.MarkUsed()
	st.CountOfUses = count
	if err := s.tickets.UpdateTicket(ctx, st); err != nil {
		return nil, err
	}

	svc, err := s.services.FindServiceBy(ctx, service)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, ErrUnauthorizedService
	}

	principal := tgt.Authentication.Principal
	return &Assertion{
		Principal:       principal.ID,
		Attributes:      svc.AttributeReleasePolicy.Release(principal.Attributes),
		Service:         service,
		AuthenticatedAt: tgt.Authentication.AuthenticatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

// Logout 销毁 TGT 及其全部子孙票据，返回销毁数量
func (s *CentralSSOService) Logout(ctx context.Context, tgtID string) (int, error) {
	count, err := s.tickets.DeleteTicket(ctx, tgtID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("登出销毁票据", zap.String("tgt", tgtID), zap.Int("count", count))
	}
	return count, nil
}

// asInvalidTicket 注册表错误统一映射为票据无效
// 损坏记录详情只进日志，对外不区分损坏、过期与不存在
func (s *CentralSSOService) asInvalidTicket(err error, id string) error {
	if errors.Is(err, registry.ErrTicketCorrupted) {
		s.log.Error("票据数据损坏", zap.String("id", id), zap.Error(err))
	}
	if errors.Is(err, registry.ErrTicketNotFound) ||
		errors.Is(err, registry.ErrTicketCorrupted) ||
		errors.Is(err, registry.ErrTicketTypeMismatch) {
		return ErrInvalidTicket
	}
	return err
}
