package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("data-dir", "", "")
	fs.String("log-level", "info", "")
	fs.String("log-format", "text", "")
	fs.Int("quality", 85, "")
	fs.Int("workers", 1, "")
	fs.Float64("width", 360, "")
	fs.Duration("settle", 2*time.Second, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 1200, cfg.Image.MaxWidth)
	assert.Equal(t, 85, cfg.Image.JPEGQuality)
	assert.Equal(t, 512*1024, cfg.Image.MaxBytes)
	assert.Equal(t, 360.0, cfg.Layout.Width)
	assert.Equal(t, 640.0, cfg.Layout.Height)
	assert.Equal(t, 2*time.Second, cfg.Watch.Settle)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, filepath.Join(cfg.DataDir, "cache"), cfg.CacheDir)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readercore.yaml")
	content := "data_dir: " + dir + "\nlog:\n  level: debug\nlayout:\n  width: 480\nwatch:\n  settle: 500ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 480.0, cfg.Layout.Width)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Settle)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readercore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\nlog:\n  level: debug\n"), 0o644))
	t.Setenv("READERCORE_LOG_LEVEL", "error")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("READERCORE_IMAGE_JPEG_QUALITY", "70")

	fs := testFlags()
	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 70, cfg.Image.JPEGQuality, "unset flag must not shadow env")

	require.NoError(t, fs.Parse([]string{"--quality", "90", "--width", "200", "--settle", "1s"}))
	cfg, err = Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Image.JPEGQuality)
	assert.Equal(t, 200.0, cfg.Layout.Width)
	assert.Equal(t, time.Second, cfg.Watch.Settle)
}

func TestLoad_ValidationNamesFlag(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"--quality", "59"}, "--quality"},
		{[]string{"--quality", "101"}, "--quality"},
		{[]string{"--log-level", "trace"}, "--log-level"},
		{[]string{"--log-format", "yaml"}, "--log-format"},
		{[]string{"--workers", "0"}, "--workers"},
		{[]string{"--width", "0"}, "--width"},
		{[]string{"--settle", "-1s"}, "--settle"},
	}
	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			t.Setenv("XDG_DATA_HOME", t.TempDir())
			fs := testFlags()
			require.NoError(t, fs.Parse(tt.args))
			_, err := Load("", fs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLayoutStyle(t *testing.T) {
	cfg := &Config{Layout: LayoutConfig{Width: 300, Height: 500, FontSize: 32, LineSpacing: 2, ItemSpacing: 8}}
	s := cfg.LayoutStyle()
	assert.Equal(t, 32.0, s.Paragraph.FontSize)
	assert.Equal(t, 2.0, s.Paragraph.LineSpacing)
	assert.Equal(t, 48.0, s.Title.FontSize)
	assert.Equal(t, 8.0, s.ItemSpacing)
}
