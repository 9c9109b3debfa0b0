package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/slide-textguard-back/internal/solver"
)

var envKeys = []string{
	"PORT", "ALLOWED_ORIGIN", "AWS_REGION", "S3_BUCKET", "CLOUDFRONT_DOMAIN",
	"RATE_LIMIT_PER_MINUTE", "LOG_LEVEL", "SESSION_TTL",
	"SOLVER_STEP_PX", "SOLVER_MAX_RADIUS_PX", "TEXT_PADDING_PX", "CONTENT_PADDING_PX",
	"MASK_SAMPLE_STRIDE", "MAX_MASK_DIMENSION", "SOLVER_MAX_PASSES", "PUSH_OUT_PREFER",
}

// clearEnv は既存の環境変数を空にし、テスト後に復元する
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantPort string
		wantStep float64
		wantErr  bool
	}{
		{
			name: "正常系: すべての環境変数が設定されている",
			envVars: map[string]string{
				"PORT":              "8080",
				"ALLOWED_ORIGIN":    "http://localhost:5173",
				"AWS_REGION":        "ap-northeast-1",
				"S3_BUCKET":         "test-bucket",
				"CLOUDFRONT_DOMAIN": "https://test.cloudfront.net",
				"SOLVER_STEP_PX":    "8",
			},
			wantPort: "8080",
			wantStep: 8,
		},
		{
			name:     "正常系: デフォルト値が使用される",
			envVars:  map[string]string{},
			wantPort: "8080",
			wantStep: 4,
		},
		{
			name:     "正常系: PORTのみカスタム",
			envVars:  map[string]string{"PORT": "3000"},
			wantPort: "3000",
			wantStep: 4,
		},
		{
			name:    "異常系: 数値でないステップ",
			envVars: map[string]string{"SOLVER_STEP_PX": "four"},
			wantErr: true,
		},
		{
			name:    "異常系: 不正な有効期限",
			envVars: map[string]string{"SESSION_TTL": "2 hours"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Port)
			assert.Equal(t, tt.wantStep, cfg.Solver.StepPx)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// デフォルト値の確認
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "ap-northeast-1", cfg.AWSRegion)
	assert.Equal(t, "http://localhost:5173", cfg.AllowedOrigin)
	assert.Equal(t, 600, cfg.RateLimitPerMinute)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, DefaultSolverConfig(), cfg.Solver)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:               "8080",
			AllowedOrigin:      "http://localhost:5173",
			AWSRegion:          "ap-northeast-1",
			RateLimitPerMinute: 600,
			Solver:             DefaultSolverConfig(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "正常系: 有効な設定", mutate: func(c *Config) {}, wantErr: false},
		{name: "異常系: 不正なポート（文字列）", mutate: func(c *Config) { c.Port = "invalid" }, wantErr: true},
		{name: "異常系: 空のポート", mutate: func(c *Config) { c.Port = "" }, wantErr: true},
		{name: "異常系: レート制限0", mutate: func(c *Config) { c.RateLimitPerMinute = 0 }, wantErr: true},
		{name: "異常系: ステップ0", mutate: func(c *Config) { c.Solver.StepPx = 0 }, wantErr: true},
		{name: "異常系: 半径がステップ未満", mutate: func(c *Config) { c.Solver.MaxRadiusPx = 2 }, wantErr: true},
		{name: "異常系: 負のパディング", mutate: func(c *Config) { c.Solver.TextPaddingPx = -1 }, wantErr: true},
		{name: "異常系: ストライド0", mutate: func(c *Config) { c.Solver.MaskStride = 0 }, wantErr: true},
		{name: "異常系: パス数0", mutate: func(c *Config) { c.Solver.MaxPasses = 0 }, wantErr: true},
		{name: "異常系: パス数が上限超過", mutate: func(c *Config) { c.Solver.MaxPasses = solver.MaxEnforcePasses + 1 }, wantErr: true},
		{name: "異常系: 細かすぎるステップ", mutate: func(c *Config) { c.Solver.StepPx = 0.05; c.Solver.MaxRadiusPx = 100 }, wantErr: true},
		{name: "異常系: リング数が上限超過", mutate: func(c *Config) { c.Solver.StepPx = 1; c.Solver.MaxRadiusPx = solver.MaxRings * 2 }, wantErr: true},
		{name: "異常系: キャンバス上限0", mutate: func(c *Config) { c.Solver.MaxCanvasDimension = 0 }, wantErr: true},
		{name: "異常系: 不明な押し出し方向", mutate: func(c *Config) { c.Solver.PushOutPrefer = "up" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSolverConfig_Settings(t *testing.T) {
	cfg := DefaultSolverConfig()
	cfg.PushOutPrefer = "Below"
	cfg.MaxPasses = 3

	s := cfg.Settings()

	assert.Equal(t, solver.SearchOptions{StepPx: 4, MaxRadiusPx: 480}, s.Search)
	assert.Equal(t, 2.0, s.TextPaddingPx)
	assert.Equal(t, 4, s.MaskStride)
	assert.Equal(t, 3, s.MaxPasses)
	assert.Equal(t, 1024, s.MaxMaskDimension)
	assert.Equal(t, solver.SideBelow, s.PushOut.Prefer)
}

func TestLoadSolverFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("正常系: 指定したキーだけ上書き", func(t *testing.T) {
		path := filepath.Join(dir, "solver.toml")
		require.NoError(t, os.WriteFile(path, []byte("step_px = 2.0\nmax_passes = 4\npush_out_prefer = \"left\"\n"), 0o600))

		cfg, err := LoadSolverFile(path, DefaultSolverConfig())

		require.NoError(t, err)
		assert.Equal(t, 2.0, cfg.StepPx)
		assert.Equal(t, 4, cfg.MaxPasses)
		assert.Equal(t, "left", cfg.PushOutPrefer)
		assert.Equal(t, 480.0, cfg.MaxRadiusPx)
	})

	t.Run("異常系: 不正な値", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("mask_stride = 0\n"), 0o600))

		_, err := LoadSolverFile(path, DefaultSolverConfig())
		assert.Error(t, err)
	})

	t.Run("異常系: ファイルがない", func(t *testing.T) {
		_, err := LoadSolverFile(filepath.Join(dir, "missing.toml"), DefaultSolverConfig())
		assert.Error(t, err)
	})
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	os.Unsetenv("S3_BUCKET")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("S3_BUCKET=from-file\nPORT=1234\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("S3_BUCKET"))
	// 既に設定されている値は上書きしない
	assert.Equal(t, "9000", os.Getenv("PORT"))

	// 存在しないファイルはエラーにしない
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "none.env")))
}
