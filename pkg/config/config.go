package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"RiskLens/pkg/engine"
)

// Config 应用配置
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Env     string `yaml:"env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Host         string        `yaml:"host"`
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		// StrictAddress 开启后拒绝非十六进制的 EVM 地址
		StrictAddress bool `yaml:"strict_address"`
	} `yaml:"api"`

	Database struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		User            string        `yaml:"user"`
		Password        string        `yaml:"password"`
		DBName          string        `yaml:"dbname"`
		SSLMode         string        `yaml:"sslmode"`
		PoolSize        int           `yaml:"pool_size"`
		MaxOverflow     int           `yaml:"max_overflow"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"database"`

	NATS struct {
		URL              string `yaml:"url"`
		ClientID         string `yaml:"client_id"`
		AlertsSubject    string `yaml:"alerts_subject"`
		DecisionsSubject string `yaml:"decisions_subject"`
		Consumer         string `yaml:"consumer"`
	} `yaml:"nats"`

	Engine struct {
		RuleVersion   string `yaml:"rule_version"`
		ScorerProfile string `yaml:"scorer_profile"`
		RulesPath     string `yaml:"rules_path"`
		ReloadCron    string `yaml:"reload_cron"`
		HealthCron    string `yaml:"health_cron"`
	} `yaml:"engine"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Detector struct {
		DataDir      string        `yaml:"data_dir"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"detector"`
}

// Default 返回不依赖配置文件即可运行的默认配置
func Default() *Config {
	var c Config
	c.App.Name = "risklens-platform"
	c.App.Env = "dev"
	c.App.Version = "0.1.0"

	c.API.Host = "0.0.0.0"
	c.API.Port = "8000"
	c.API.ReadTimeout = 10 * time.Second
	c.API.WriteTimeout = 10 * time.Second

	c.Database.Host = "localhost"
	c.Database.Port = 5432
	c.Database.User = "risklens"
	c.Database.Password = "risklens"
	c.Database.DBName = "risklens"
	c.Database.SSLMode = "disable"
	c.Database.PoolSize = 5
	c.Database.MaxOverflow = 10
	c.Database.ConnMaxLifetime = 30 * time.Minute

	c.NATS.URL = "nats://localhost:4222"
	c.NATS.ClientID = "risklens"
	c.NATS.AlertsSubject = "alerts"
	c.NATS.DecisionsSubject = "decisions"
	c.NATS.Consumer = "risklens-engine"

	c.Engine.RuleVersion = "v1.0.0"
	c.Engine.ScorerProfile = "default"
	c.Engine.RulesPath = "./configs/rules.yaml"
	c.Engine.ReloadCron = "@every 5m"
	c.Engine.HealthCron = "@every 30s"

	c.Log.Level = "info"
	c.Log.Format = "json"

	c.Detector.DataDir = "../whale-sentry/data"
	c.Detector.PollInterval = 30 * time.Second
	return &c
}

// LoadConfig 从文件加载配置，文件必须存在
func LoadConfig(path string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析YAML，未出现的字段保留默认值
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := finish(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Load 与 LoadConfig 相同，但配置文件不存在时使用默认配置
func Load(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	config = Default()
	if err := finish(config); err != nil {
		return nil, err
	}
	return config, nil
}

func finish(config *Config) error {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("加载.env失败: %w", err)
	}

	// 环境变量覆盖
	if err := overrideFromEnv(config); err != nil {
		return err
	}
	return config.Validate()
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	profile, err := engine.ParseProfile(c.Engine.ScorerProfile)
	if err != nil {
		return fmt.Errorf("评分配置无效: %w", err)
	}
	c.Engine.ScorerProfile = string(profile)

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("未知的日志格式: %q", c.Log.Format)
	}
	if c.Database.PoolSize < 0 || c.Database.MaxOverflow < 0 {
		return fmt.Errorf("数据库连接池大小不能为负数")
	}
	return nil
}

// DSN postgres 连接串
func (c *Config) DSN() string {
	db := c.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.DBName, db.SSLMode)
}

// Addr API 监听地址
func (c *Config) Addr() string {
	return c.API.Host + ":" + c.API.Port
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) error {
	// 应用
	if env := os.Getenv("APP_NAME"); env != "" {
		config.App.Name = env
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		config.App.Env = env
	}

	// API配置
	if env := os.Getenv("API_HOST"); env != "" {
		config.API.Host = env
	}
	if env := os.Getenv("API_PORT"); env != "" {
		config.API.Port = env
	}
	if env := os.Getenv("API_STRICT_ADDRESS"); env != "" {
		strict, err := strconv.ParseBool(env)
		if err != nil {
			return fmt.Errorf("API_STRICT_ADDRESS 无效: %w", err)
		}
		config.API.StrictAddress = strict
	}

	// 数据库配置
	if env := os.Getenv("DB_ENABLED"); env != "" {
		enabled, err := strconv.ParseBool(env)
		if err != nil {
			return fmt.Errorf("DB_ENABLED 无效: %w", err)
		}
		config.Database.Enabled = enabled
	}
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Database.Host = env
	}
	if err := intFromEnv("DB_PORT", &config.Database.Port); err != nil {
		return err
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.Database.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Database.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Database.DBName = env
	}
	if err := intFromEnv("DB_POOL_SIZE", &config.Database.PoolSize); err != nil {
		return err
	}
	if err := intFromEnv("DB_MAX_OVERFLOW", &config.Database.MaxOverflow); err != nil {
		return err
	}

	// NATS配置
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
	}
	if env := os.Getenv("NATS_CLIENT_ID"); env != "" {
		config.NATS.ClientID = env
	}

	// 引擎配置
	if env := os.Getenv("RULE_VERSION"); env != "" {
		config.Engine.RuleVersion = env
	}
	if env := os.Getenv("SCORER_PROFILE"); env != "" {
		config.Engine.ScorerProfile = env
	}
	if env := os.Getenv("RULES_CONFIG_PATH"); env != "" {
		config.Engine.RulesPath = env
	}
	if env := os.Getenv("RULES_RELOAD_CRON"); env != "" {
		config.Engine.ReloadCron = env
	}

	// 日志
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		config.Log.Level = env
	}
	if env := os.Getenv("LOG_FORMAT"); env != "" {
		config.Log.Format = env
	}

	// 上游检测器
	if env := os.Getenv("WHALE_SENTRY_DATA_DIR"); env != "" {
		config.Detector.DataDir = env
	}
	return nil
}

func intFromEnv(key string, target *int) error {
	env := os.Getenv(key)
	if env == "" {
		return nil
	}
	n, err := strconv.Atoi(env)
	if err != nil {
		return fmt.Errorf("%s 无效: %w", key, err)
	}
	*target = n
	return nil
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
