package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is the shared missing-record sentinel.
var ErrNotFound = models.ErrNotFound

// ErrRedisDisabled is returned by Redis operations when no Redis URL is set.
var ErrRedisDisabled = errors.New("redis is not configured")

// Database connection manager
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

// Database configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// NewManager opens the PostgreSQL pool and, when configured, the Redis pool
func NewManager(config *Config, logger *logrus.Logger) (*Manager, error) {
	db, err := gorm.Open(postgres.Open(config.DatabaseURL), GormConfig(config.LogLevel, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var redisClient *redis.Client
	if config.RedisURL != "" {
		redisClient, err = NewRedisClient(config.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Database connections established successfully")

	return NewManagerWithDB(db, redisClient, logger), nil
}

// NewManagerWithDB wraps already opened connections.
func NewManagerWithDB(db *gorm.DB, redisClient *redis.Client, logger *logrus.Logger) *Manager {
	return &Manager{
		DB:     db,
		Redis:  redisClient,
		logger: logger,
	}
}

// GormConfig builds the gorm settings shared by every dialect.
func GormConfig(logLevel string, logger *logrus.Logger) *gorm.Config {
	gormLog := gormlogger.Default.LogMode(gormlogger.Silent)
	if logLevel == "debug" {
		gormLog = gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Info,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	}
	return &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
	}
}

// NewRedisClient parses the URL and verifies the connection.
func NewRedisClient(url string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 5
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute
	redisOpts.IdleCheckFrequency = 30 * time.Second

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Migrate runs database migrations
func (m *Manager) Migrate() error {
	m.logger.Info("Running database migrations...")
	return m.DB.AutoMigrate(models.AllModels()...)
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase() error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Manager) PingRedis() error {
	if m.Redis == nil {
		return ErrRedisDisabled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Redis.Ping(ctx).Err()
}

// RedisEnabled reports whether a Redis pool was configured.
func (m *Manager) RedisEnabled() bool {
	return m.Redis != nil
}
