package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "gas",
		Password: "secret",
		Database: "gasguard",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5433 user=gas password=secret dbname=gasguard sslmode=disable", cfg.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TESTDB_HOST", "env-host")
	t.Setenv("TESTDB_PORT", "6543")
	t.Setenv("TESTDB_NAME", "env-db")
	t.Setenv("TESTDB_MAX_CONNS", "20")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres"}
	cfg.LoadFromEnv("TESTDB")

	assert.Equal(t, "env-host", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "env-db", cfg.Database)
	assert.Equal(t, "postgres", cfg.User)
	assert.Equal(t, 20, cfg.MaxConns)
}

func TestDatabaseConfig_LoadFromEnv_InvalidPortKeepsDefault(t *testing.T) {
	t.Setenv("TESTDB_PORT", "not-a-port")

	cfg := DatabaseConfig{Port: 5432}
	cfg.LoadFromEnv("TESTDB")

	assert.Equal(t, 5432, cfg.Port)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TESTREDIS_ENABLED", "true")
	t.Setenv("TESTREDIS_ADDR", "redis:6380")
	t.Setenv("TESTREDIS_DB", "3")

	var cfg RedisConfig
	cfg.LoadFromEnv("TESTREDIS")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TESTMQTT_BROKER", "tcp://broker:1883")
	t.Setenv("TESTMQTT_QOS", "1")
	t.Setenv("TESTMQTT_CLIENT_ID", "gasguard-test")

	var cfg MQTTConfig
	cfg.LoadFromEnv("TESTMQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, "gasguard-test", cfg.ClientID)
	assert.False(t, cfg.Enabled)
}
