package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyFileName(t *testing.T) {
	day := time.Date(2019, 3, 8, 10, 0, 0, 0, time.Local)
	assert.Equal(t, "fx_20190308.log", DailyFileName("trader.log", day))
	assert.Equal(t, filepath.Join("logs", "fx_20190308.log"), DailyFileName("logs/trader.log", day))
	assert.Equal(t, filepath.Join("logs", "fx_20190308.log"), DailyFileName("logs/trader", day))
}

func TestInitWritesFileAndGlobalLogger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(Config{
		Level:      "debug",
		OutputFile: filepath.Join(dir, "trader.log"),
		Daily:      true,
	}))
	defer func() { _ = Close() }()

	path := GetCurrentLogFile()
	assert.Equal(t, DailyFileName(filepath.Join(dir, "trader.log"), time.Now()), path)

	Infof("hello %s", "world")
	logrus.WithField("component", "oms").Debug("from component")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(b)
	assert.Contains(t, content, "hello world")
	assert.Contains(t, content, "component=oms")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "verbose"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
	assert.Empty(t, GetCurrentLogFile())
	assert.True(t, strings.HasPrefix(WithField("k", "v").Data["k"].(string), "v"))
}
