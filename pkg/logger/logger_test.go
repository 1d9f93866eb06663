package logger

import (
	"path/filepath"
	"testing"
)

// TestNewWithDefaults 测试默认配置创建
func TestNewWithDefaults(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) error = %v", err)
	}
	if l == nil {
		t.Fatal("New(nil) returned nil logger")
	}

	l.Info("test message", "key", "value")
}

// TestConfigValidate 测试配置验证
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{
			name:    "valid default",
			cfg:     DefaultConfig(),
			wantErr: nil,
		},
		{
			name: "file output without path",
			cfg: &Config{
				Level:      InfoLevel,
				EnableFile: true,
			},
			wantErr: ErrInvalidOutputPath,
		},
		{
			name: "no output enabled",
			cfg: &Config{
				Level: InfoLevel,
			},
			wantErr: ErrNoOutputEnabled,
		},
		{
			name: "invalid level",
			cfg: &Config{
				Level:         Level("verbose"),
				EnableConsole: true,
			},
			wantErr: ErrInvalidLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestFileOutput 测试文件输出
func TestFileOutput(t *testing.T) {
	dir := t.TempDir()

	l, err := New(&Config{
		Level:      DebugLevel,
		Format:     JSONFormat,
		EnableFile: true,
		OutputPath: filepath.Join(dir, "test.log"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Debug("debug message", "n", 1)
	l.Error("error message", "n", 2)
	_ = l.Sync()
}

// TestNamed 测试具名派生
func TestNamed(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	named := l.Named("dao.session")
	if named == nil {
		t.Fatal("Named() returned nil")
	}
	named.Info("named logger message")

	withFields := named.WithFields("service", "study")
	if withFields == nil {
		t.Fatal("WithFields() returned nil")
	}
	withFields.Info("with fields message")
}

// TestNoop 测试空日志记录器
func TestNoop(t *testing.T) {
	l := Noop()
	l.Debug("ignored")
	l.Info("ignored")
	l.Warn("ignored")
	l.Error("ignored")

	if l.Named("x") == nil {
		t.Error("Noop Named() returned nil")
	}
	if err := l.Sync(); err != nil {
		t.Errorf("Noop Sync() error = %v", err)
	}
}
