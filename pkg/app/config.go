package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edooria/edooria/pkg/config"
	"github.com/spf13/pflag"
)

var (
	configPath string
	logPath    string
)

// LoadConfig 集成 pkg/config 提供统一加载能力
// 严格遵守优先级：1. 命令行显式参数 > 2. 环境变量 > 3. 配置文件 > 4. 默认值
func LoadConfig(target any) error {
	// 1. 获取执行目录，用于计算默认值
	execDir, err := GetExecDir()
	if err != nil {
		return fmt.Errorf("failed to get executable directory: %w", err)
	}

	// 2. 预计算默认物理路径
	defaultConfig := filepath.Join(execDir, "config.yaml")
	defaultLog := filepath.Join(execDir, "logs", "app.log")

	// 3. 注册命令行参数
	if pflag.Lookup("config") == nil {
		pflag.StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	}
	if pflag.Lookup("log.path") == nil {
		pflag.StringVar(&logPath, "log.path", defaultLog, "output path for logs")
	}

	// 4. 解析命令行参数
	if !pflag.Parsed() {
		pflag.Parse()
	}

	loader := config.NewLoader()

	// 5. 确定配置文件路径
	// 优先级：Flag 显式指定 > 环境变量 EDOORIA_CONFIG > 默认物理路径
	finalConfigPath := configPath
	if !pflag.CommandLine.Changed("config") {
		if envConfig := os.Getenv(config.EnvPrefix + "_CONFIG"); envConfig != "" {
			finalConfigPath = envConfig
		}
	}

	if _, err := os.Stat(finalConfigPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found at %s", finalConfigPath)
	}
	configPath = finalConfigPath

	// 6. 设置配置项优先级
	loader.SetDefault("log.output_path", defaultLog)
	loader.SetDefault("log.enable_file", true)

	// 命令行显式使用了 --log.path 时强制覆盖所有来源
	if pflag.CommandLine.Changed("log.path") {
		loader.Set("log.output_path", logPath)
	}

	// 7. 加载并解析
	if err := loader.LoadFile(configPath); err != nil {
		return err
	}

	if err := loader.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 8. 获取最终生效的日志路径（用于自动创建目录）
	logPath = loader.Viper().GetString("log.output_path")
	logDir := filepath.Dir(logPath)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		_ = os.MkdirAll(logDir, 0755)
	}

	return nil
}

// GetExecDir 获取可执行文件所在目录（处理符号链接）
func GetExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return filepath.Dir(execPath), nil
	}
	return filepath.Dir(realPath), nil
}

// GetConfigPath 返回最终使用的配置文件路径
func GetConfigPath() string {
	return configPath
}

func GetLogPath() string {
	return logPath
}
