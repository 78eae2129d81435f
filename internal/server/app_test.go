package server

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/config"
	"github.com/dmitrijs2005/gradekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gradekeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = ""
	c.RefreshStore = config.RefreshStoreMemory
	c.Notifier = config.NotifierLog
	c.S3Bucket = ""
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.EndpointAddrHTTP = "127.0.0.1:0"
	return c
}

func TestNewApp_InvalidConfig(t *testing.T) {
	c := memoryConfig()
	c.SecretKey = ""

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestNewApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestBuild_LoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := memoryConfig()
	c.AccessTokenValidityDuration = 15 * time.Minute

	comp := Build(c, memory.NewStore(), refreshtokens.NewMemoryRepository(),
		notify.NewLogPublisher(logging.Nop{}), nil, logging.Nop{}, metrics.Nop{})
	comp.Auth.BcryptCost = 4

	_, err := comp.Auth.AddUser(ctx, services.NewUser{
		SchoolID:    "s1",
		Role:        models.RoleTeacher,
		DisplayName: "T",
		Email:       "t@example.com",
		Password:    "password1",
	})
	require.NoError(t, err)

	sess, err := comp.Auth.Login(ctx, "t@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, sess.ExpiresIn)

	p, err := comp.Auth.Authenticate(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, p.Role)
	assert.Equal(t, "s1", p.SchoolID)
}

func TestConnect_MemoryBackends(t *testing.T) {
	b, err := Connect(context.Background(), memoryConfig(), logging.Nop{})
	require.NoError(t, err)
	defer b.Close()

	assert.Nil(t, b.DB)
	assert.Nil(t, b.Redis)
	assert.IsType(t, &memory.Store{}, b.Store)
	assert.IsType(t, &refreshtokens.MemoryRepository{}, b.RefreshTokens)
}

func TestConnect_RedisRefreshStore(t *testing.T) {
	mr := miniredis.RunT(t)

	c := memoryConfig()
	c.RefreshStore = config.RefreshStoreRedis
	c.RedisAddr = mr.Addr()

	b, err := Connect(context.Background(), c, logging.Nop{})
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.Redis)
	assert.IsType(t, &refreshtokens.RedisRepository{}, b.RefreshTokens)
	require.NoError(t, b.Redis.Ping(context.Background()).Err())
}
