package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	commoncfg "gasguard/common/config"
	"gasguard/internal/models"

	"github.com/joho/godotenv"
)

// Config gasguard 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig
	MQTT      MQTTConfig
	Email     EmailConfig
	Alert     AlertConfig
	Retention RetentionConfig
	Log       struct {
		Level  string
		Format string
	}
}

// MQTTConfig MQTT 读数接入配置
type MQTTConfig struct {
	commoncfg.MQTTConfig
	Topic string // 订阅主题，默认 gasguard/+/readings
}

// EmailConfig 邮件发送配置
type EmailConfig struct {
	Provider    string        // resend | smtp | log
	APIKey      string        // Resend API key
	APIURL      string        // Resend 兼容接口地址
	From        string        // 发件人
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SendTimeout time.Duration // 单次发送超时，超时按失败审计
}

// AlertConfig 报警升级与限流配置
type AlertConfig struct {
	RequiredConsecutiveAlerts int
	DefaultCooldownMinutes    int
	DefaultMaxPerHour         int
	CooldownScope             string // device | sensor
	Timezone                  string // 静默时段默认时区
	NotifyAsync               bool   // 通知流水线在后台 goroutine 中运行
	ThresholdsJSON            string
	ThresholdsFile            string
	LockTTL                   time.Duration
	PreferenceCacheTTL        time.Duration
	AuditStream               string
}

// RetentionConfig 读数保留配置
type RetentionConfig struct {
	MaxReadings      int
	PruneProbability float64
	Interval         time.Duration // 0 表示不启用定时清理
}

// 分布式通知锁必须覆盖 发送超时 + 审计写入超时（与 notifier 的 auditWriteTimeout 一致）+ 余量
const (
	lockAuditWriteTimeout = 5 * time.Second
	lockTTLMargin         = 5 * time.Second
)

// MinLockTTL 给定发送超时下允许的最小锁 TTL
func MinLockTTL(sendTimeout time.Duration) time.Duration {
	return sendTimeout + lockAuditWriteTimeout + lockTTLMargin
}

// 冷却范围
const (
	CooldownScopeDevice = "device"
	CooldownScopeSensor = "sensor"
)

// Load 加载配置（先读取 .env，环境变量优先）
func Load() *Config {
	_ = godotenv.Load() // .env 可选

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "gasguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)
	cfg.Database.ConnMaxLifetime = parseDuration(getEnv("DB_CONN_MAX_LIFETIME", "30m"), 30*time.Minute)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	// MQTT 接入（默认禁用，设备走 HTTP）
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "gasguard-ingest")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(clamp(parseInt(getEnv("MQTT_QOS", "1"), 1), 0, 2))
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "gasguard/+/readings")

	cfg.Email.Provider = strings.ToLower(getEnv("EMAIL_PROVIDER", "log"))
	cfg.Email.APIKey = getEnv("RESEND_API_KEY", "")
	cfg.Email.APIURL = getEnv("RESEND_API_URL", "https://api.resend.com")
	cfg.Email.From = getEnv("EMAIL_FROM", "GasGuard <alertas@gasguard.local>")
	cfg.Email.SMTPHost = getEnv("SMTP_HOST", "localhost")
	cfg.Email.SMTPPort = parseInt(getEnv("SMTP_PORT", "587"), 587)
	cfg.Email.SMTPUser = getEnv("SMTP_USER", "")
	cfg.Email.SMTPPass = getEnv("SMTP_PASS", "")
	cfg.Email.SendTimeout = parseDuration(getEnv("EMAIL_SEND_TIMEOUT", "10s"), 10*time.Second)

	cfg.Alert.RequiredConsecutiveAlerts = clamp(parseInt(getEnv("REQUIRED_CONSECUTIVE_ALERTS", "3"), 3), 1, 50)
	cfg.Alert.DefaultCooldownMinutes = parseInt(getEnv("DEFAULT_EMAIL_COOLDOWN_MINUTES", "5"), 5)
	cfg.Alert.DefaultMaxPerHour = parseInt(getEnv("DEFAULT_MAX_EMAILS_PER_HOUR", "10"), 10)
	cfg.Alert.CooldownScope = strings.ToLower(getEnv("COOLDOWN_SCOPE", CooldownScopeDevice))
	if cfg.Alert.CooldownScope != CooldownScopeSensor {
		cfg.Alert.CooldownScope = CooldownScopeDevice
	}
	cfg.Alert.Timezone = getEnv("ALERT_TIMEZONE", "UTC")
	cfg.Alert.NotifyAsync = getEnv("NOTIFY_ASYNC", "true") == "true"
	cfg.Alert.ThresholdsJSON = getEnv("THRESHOLDS_JSON", "")
	cfg.Alert.ThresholdsFile = getEnv("THRESHOLDS_FILE", "")
	cfg.Alert.LockTTL = parseDuration(getEnv("NOTIFY_LOCK_TTL", "30s"), 30*time.Second)
	if minTTL := MinLockTTL(cfg.Email.SendTimeout); cfg.Alert.LockTTL < minTTL {
		cfg.Alert.LockTTL = minTTL
	}
	cfg.Alert.PreferenceCacheTTL = parseDuration(getEnv("PREFERENCE_CACHE_TTL", "60s"), 60*time.Second)
	cfg.Alert.AuditStream = getEnv("AUDIT_STREAM", "notification:audit:stream")

	cfg.Retention.MaxReadings = parseInt(getEnv("RETENTION_MAX_READINGS", "50"), 50)
	cfg.Retention.PruneProbability = parseFloat(getEnv("RETENTION_PRUNE_PROBABILITY", "0.1"), 0.1)
	cfg.Retention.Interval = parseDuration(getEnv("RETENTION_INTERVAL", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

// Thresholds 解析阈值表：THRESHOLDS_JSON 优先，其次 THRESHOLDS_FILE，都未设置时使用默认表
func (c *AlertConfig) Thresholds() (models.ThresholdTable, error) {
	if c.ThresholdsJSON != "" {
		return models.ParseThresholdTable([]byte(c.ThresholdsJSON))
	}
	if c.ThresholdsFile != "" {
		data, err := os.ReadFile(c.ThresholdsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read thresholds file: %w", err)
		}
		return models.ParseThresholdTable(data)
	}
	return models.DefaultThresholdTable(), nil
}

// Location 静默时段默认时区，无法解析时回退 UTC
func (c *AlertConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
