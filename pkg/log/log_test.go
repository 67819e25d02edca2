package log

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

func TestInitLoggerWithWriteSyncer(t *testing.T) {
	buf := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "info", Format: "json"}, buf)
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())

	lg.Debug("hidden")
	lg.Info("joined", FieldUsername("alice"), FieldGeneration(3))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"username":"alice"`)
	assert.Contains(t, out, `"generation":3`)
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, &bufferSyncer{})
	assert.Error(t, err)
}

func TestInitLoggerFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Level: "warn", File: FileLogConfig{RootPath: dir, Filename: "chat.log"}}
	lg, props, err := InitLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())

	lg.Warn("eviction", FieldUsername("bob"))
	require.NoError(t, lg.Sync())
	data, err := os.ReadFile(filepath.Join(dir, "chat.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "eviction"))
}

func TestInitLoggerDirectoryAsFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := InitLogger(&Config{File: FileLogConfig{Filename: dir}})
	assert.Error(t, err)
}

func TestCtxFields(t *testing.T) {
	buf := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: "json"}, buf)
	require.NoError(t, err)

	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	replaceLeveledLoggers(lg)
	defer func() {
		ReplaceGlobals(oldL, oldP)
		replaceLeveledLoggers(oldL)
	}()

	ctx := WithUsername(context.Background(), "carol")
	ctx = WithFields(ctx, FieldOp("join"))
	Ctx(ctx).Info("handled")
	out := buf.String()
	assert.Contains(t, out, `"username":"carol"`)
	assert.Contains(t, out, `"op":"join"`)

	buf.Reset()
	Ctx(WithWarnLevel(context.Background())).Info("suppressed")
	assert.Empty(t, buf.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.0001, 2)
	assert.True(t, rl.CheckCredit(1))
	assert.True(t, rl.CheckCredit(1))
	assert.False(t, rl.CheckCredit(1))

	assert.True(t, nopRateLimiter{}.CheckCredit(100))
}

func TestRateGroup(t *testing.T) {
	buf := &bufferSyncer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug"}, buf)
	require.NoError(t, err)

	ml := (&MLogger{Logger: lg}).WithRateGroup("test.fanout", 0.0001, 1)
	assert.True(t, ml.RatedInfo(1, "first"))
	assert.False(t, ml.RatedInfo(1, "second"))

	other := (&MLogger{Logger: lg}).WithRateGroup("test.fanout", 0.0001, 1)
	assert.False(t, other.RatedWarn(1, "shared group"))
}

func TestSetRateLimiterNil(t *testing.T) {
	old := R()
	defer SetRateLimiter(old)
	SetRateLimiter(nil)
	assert.True(t, R().CheckCredit(1000))
}

func TestInitTestLogger(t *testing.T) {
	lg, _, err := InitTestLogger(t, &Config{Level: "debug"}, zap.AddCaller())
	require.NoError(t, err)
	lg.Debug("visible in test output")
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	buf := &bufferSyncer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "info", Format: "json"}, buf)
	require.NoError(t, err)
	b.SetLogger(&MLogger{Logger: lg})
	b.Ctx(context.Background()).Info("bound")
	assert.Contains(t, buf.String(), "bound")

	buf.Reset()
	ctx := context.WithValue(context.Background(), CtxLogKey, &MLogger{Logger: zap.NewNop()})
	b.Ctx(ctx).Info("from ctx")
	assert.Empty(t, buf.String())
}
