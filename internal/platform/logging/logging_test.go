package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "debug",
		Dir:      tmpDir,
		Filename: "test.log",
	})

	assert.NoError(t, err)
	assert.NotNil(t, logger)

	err = logger.Close()
	assert.NoError(t, err)
}

func TestLogger_Info(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "info",
		Dir:      tmpDir,
		Filename: "info.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	testMsg := "failed login recorded"
	logger.Info("%s", testMsg)

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "info.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), testMsg)
}

func TestLogger_InfoFormatted(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "debug",
		Dir:      tmpDir,
		Filename: "info_args.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("lockout for %s after %d attempts", "user@example.com", 5)

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "info_args.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "user@example.com")
	assert.Contains(t, string(content), "5 attempts")
}

func TestLogger_InfoTag(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "debug",
		Dir:      tmpDir,
		Filename: "tag.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.InfoTag(TagLockout, "identifier locked")

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "tag.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[LOCKOUT]")
	assert.Contains(t, string(content), "identifier locked")
}

func TestLogger_SecurityEvent(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "info",
		Dir:      tmpDir,
		Filename: "audit.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.SecurityEvent("FAILED_LOGIN", map[string]interface{}{
		"ip":       "203.0.113.7",
		"username": "user@example.com",
	})

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "audit.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "security_event")
	assert.Contains(t, string(content), "FAILED_LOGIN")
	assert.Contains(t, string(content), "203.0.113.7")
}

func TestLogger_LogLevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "error",
		Dir:      tmpDir,
		Filename: "filter.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug("this should not appear")
	logger.Info("this should not appear either")
	logger.Warn("this should not appear")
	logger.Error("this should appear")

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "filter.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "this should not appear")
	assert.Contains(t, string(content), "this should appear")
}

func TestFormatLog(t *testing.T) {
	tests := []struct {
		tag      string
		message  string
		expected string
	}{
		{"BOOT", "services ready", "[BOOT] services ready"},
		{"", "plain message", "plain message"},
		{"CACHE", "[CACHE] already tagged", "[CACHE] already tagged"},
		{" SECURITY ", " trimmed ", "[SECURITY] trimmed"},
	}

	for _, tt := range tests {
		result := FormatLog(tt.tag, tt.message)
		assert.Equal(t, tt.expected, result, "tag: %q message: %q", tt.tag, tt.message)
	}
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(Config{
		Level:    "debug",
		Dir:      tmpDir,
		Filename: "concurrent.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			logger.Info("concurrent message number %d", idx)
		}(i)
	}

	wg.Wait()

	time.Sleep(50 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "concurrent.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	count := strings.Count(string(content), "concurrent message number")
	assert.Equal(t, 10, count)
}
