package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Phreeqc    PhreeqcConfig    `yaml:"phreeqc"`
	MonteCarlo MonteCarloConfig `yaml:"montecarlo"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

type PhreeqcConfig struct {
	// phreeqc 可执行文件路径（为空则从 PATH 查找 "phreeqc"）
	BinaryPath string `yaml:"binary_path"`
	// 热力学数据库目录（按名称解析 *.dat）
	DatabaseDir string `yaml:"database_dir"`
	// 默认数据库名（如 pitzer）
	DefaultDatabase string `yaml:"default_database"`
	// 单次求解超时（秒）
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// 取消后等待在途求解退出的宽限期（秒）
	KillGraceSeconds int `yaml:"kill_grace_seconds"`
	// 临时工作目录（为空则使用系统临时目录）
	WorkDir string `yaml:"work_dir"`
}

type MonteCarloConfig struct {
	// 默认试验次数
	Trials int `yaml:"trials"`
	// 默认种子（0 表示用当前时间）
	Seed int64 `yaml:"seed"`
	// 最大并发求解数
	MaxConcurrency int `yaml:"max_concurrency"`
	// 瞬时失败（超时/进程失败）的最大重试次数
	MaxRetries int `yaml:"max_retries"`
	// 固定间隔退避基数（毫秒），第 k 次重试等待 k*backoff
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
	// 已完成试验的失败率超过该阈值则提前终止整批（0 表示不启用）
	AbortFailureRate float64 `yaml:"abort_failure_rate"`
	// 统计所需的最少成功试验数
	MinTrials int `yaml:"min_trials"`
	// 汇总分位数（0~100）
	Percentiles []float64 `yaml:"percentiles"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Phreeqc.BinaryPath == "" {
		c.Phreeqc.BinaryPath = "phreeqc"
	}
	if c.Phreeqc.DefaultDatabase == "" {
		c.Phreeqc.DefaultDatabase = "pitzer"
	}
	if c.Phreeqc.TimeoutSeconds <= 0 {
		c.Phreeqc.TimeoutSeconds = 30
	}
	if c.Phreeqc.KillGraceSeconds <= 0 {
		c.Phreeqc.KillGraceSeconds = 5
	}
	if c.MonteCarlo.Trials <= 0 {
		c.MonteCarlo.Trials = 1000
	}
	if c.MonteCarlo.MaxConcurrency <= 0 {
		c.MonteCarlo.MaxConcurrency = 4
	}
	if c.MonteCarlo.MaxRetries < 0 {
		c.MonteCarlo.MaxRetries = 0
	}
	if c.MonteCarlo.RetryBackoffMs <= 0 {
		c.MonteCarlo.RetryBackoffMs = 200
	}
	if c.MonteCarlo.MinTrials <= 0 {
		c.MonteCarlo.MinTrials = 10
	}
	if len(c.MonteCarlo.Percentiles) == 0 {
		c.MonteCarlo.Percentiles = []float64{5, 50, 95}
	}
}
