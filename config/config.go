package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"superstore/ml"
)

// EnvPrefix 环境变量前缀，例如 SUPERSTORE_SERVER_ADDR
const EnvPrefix = "SUPERSTORE"

// Config 服务配置。加载顺序：默认值 -> YAML 文件 -> 环境变量。
// 叶子字段不写 envconfig 标签：带标签时 envconfig 会回退读取同名的裸变量（PATH、LEVEL 等）
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Data     DataConfig     `yaml:"data" envconfig:"DATA"`
	Model    ModelConfig    `yaml:"model" envconfig:"MODEL"`
	Training TrainingConfig `yaml:"training" envconfig:"TRAINING"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Addr            string        `yaml:"addr" split_words:"true" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
	MaxUploadMB     int64         `yaml:"max_upload_mb" split_words:"true" validate:"gte=1"`
	AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true"`
	TrainPerMinute  float64       `yaml:"train_per_minute" split_words:"true" validate:"gt=0"` // 训练接口限流
	TrainBurst      int           `yaml:"train_burst" split_words:"true" validate:"gte=1"`
}

// DataConfig 数据集与会话
type DataConfig struct {
	DefaultDataset string `yaml:"default_dataset" split_words:"true"` // 为空时必须上传
	MaxSessions    int    `yaml:"max_sessions" split_words:"true" validate:"gte=1"`
}

// ModelConfig 模型文件
type ModelConfig struct {
	Path  string `yaml:"path" split_words:"true" validate:"required"`
	Watch bool   `yaml:"watch" split_words:"true"` // 文件变化时自动重新加载
}

// TrainingConfig 训练参数
type TrainingConfig struct {
	Dataset   string  `yaml:"dataset" split_words:"true"`
	NTrees    int     `yaml:"n_trees" split_words:"true" validate:"gte=1"`
	MaxDepth  int     `yaml:"max_depth" split_words:"true" validate:"gte=0"` // 0 表示不限
	TestRatio float64 `yaml:"test_ratio" split_words:"true" validate:"gt=0,lt=1"`
	Seed      uint64  `yaml:"seed" split_words:"true"`
	Workers   int     `yaml:"workers" split_words:"true" validate:"gte=0"`
}

// DatabaseConfig 训练与预测日志
type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"` // 为空时不记录
}

// LoggingConfig 日志
type LoggingConfig struct {
	Level       string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" split_words:"true"`
	File        string `yaml:"file" split_words:"true"` // 为空时只写 stderr
	MaxSizeMB   int    `yaml:"max_size_mb" split_words:"true" validate:"gte=0"`
	MaxBackups  int    `yaml:"max_backups" split_words:"true" validate:"gte=0"`
	MaxAgeDays  int    `yaml:"max_age_days" split_words:"true" validate:"gte=0"`
	Compress    bool   `yaml:"compress" split_words:"true"`
}

// Default 默认配置
func Default() Config {
	train := ml.DefaultTrainingConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadMB:     50,
			AllowedOrigins:  []string{"*"},
			TrainPerMinute:  2,
			TrainBurst:      1,
		},
		Data: DataConfig{
			DefaultDataset: "data/superstore.csv",
			MaxSessions:    256,
		},
		Model: ModelConfig{
			Path:  train.ModelPath,
			Watch: true,
		},
		Training: TrainingConfig{
			Dataset:   "data/superstore.csv",
			NTrees:    train.NTrees,
			TestRatio: train.TestRatio,
			Seed:      train.Seed,
		},
		Database: DatabaseConfig{Path: "data/superstore.db"},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load 读取配置。path 为空或文件不存在时只用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// TrainerConfig 转换为训练器参数
func (c *Config) TrainerConfig() ml.TrainingConfig {
	return ml.TrainingConfig{
		ModelPath: c.Model.Path,
		NTrees:    c.Training.NTrees,
		MaxDepth:  c.Training.MaxDepth,
		TestRatio: c.Training.TestRatio,
		Seed:      c.Training.Seed,
		Workers:   c.Training.Workers,
	}
}
