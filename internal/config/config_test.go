package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "sso_center", cfg.Database.Postgres.DBName)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Redis.CallTimeout)

	assert.Equal(t, 8*time.Hour, cfg.Ticket.TGTMaxTimeToLive)
	assert.Equal(t, 2*time.Hour, cfg.Ticket.TGTTimeToKill)
	assert.Equal(t, 5*time.Minute, cfg.Ticket.STTimeToKill)
	assert.Equal(t, time.Minute, cfg.Ticket.CleanerInterval)

	assert.Equal(t, "closed", cfg.Authn.FailureMode)
	assert.Equal(t, "MERGE", cfg.Authn.MergeRule)

	assert.Equal(t, "active-passive", cfg.Replication.Mode)
	assert.Zero(t, cfg.Replication.ResyncInterval)

	assert.Equal(t, "sso-center", cfg.TGC.Issuer)
	assert.Equal(t, 8*time.Hour, cfg.TGC.Expiry)
	// 签名密钥无默认值，部署方必须显式配置
	assert.Empty(t, cfg.TGC.Secret)
}
