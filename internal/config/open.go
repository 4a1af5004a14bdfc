package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/entitystore/mapstore"
	"github.com/roach88/polygene/internal/entitystore/redisstore"
	"github.com/roach88/polygene/internal/entitystore/sqlstore"
	"github.com/roach88/polygene/internal/metrics"
)

// OpenStore builds the configured entity store. The caller closes it when it
// implements entitystore.Closer.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (entitystore.EntityStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := cfg.Store
	logger.Debug("opening entity store", "driver", s.Driver)

	switch s.Driver {
	case DriverMemory, "":
		return mapstore.NewMemory(mapOptions(s, logger)...), nil
	case DriverFile:
		m, err := mapstore.NewFileMap(s.Dir)
		if err != nil {
			return nil, err
		}
		return mapstore.New(m, mapOptions(s, logger)...), nil
	case DriverS3:
		m, err := mapstore.NewS3Map(ctx, mapstore.S3Config{
			Bucket:          s.S3.Bucket,
			Region:          s.S3.Region,
			Endpoint:        s.S3.Endpoint,
			Prefix:          s.S3.Prefix,
			PathStyle:       s.S3.PathStyle,
			AccessKeyID:     s.S3.AccessKeyID,
			SecretAccessKey: s.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return mapstore.New(m, mapOptions(s, logger)...), nil
	case DriverSQLite:
		st, err := sqlstore.OpenSQLite(ctx, s.Path, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverPostgres, DriverMySQL:
		dialect, err := sqlstore.DialectByName(s.Driver)
		if err != nil {
			return nil, err
		}
		st, err := sqlstore.Open(ctx, dialect, s.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    s.Redis.Addrs,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, entitystore.WrapIO("redis ping", err)
		}
		return redisstore.New(client,
			redisstore.WithPrefix(s.Redis.Prefix),
			redisstore.WithLockTTL(s.Redis.LockTTL),
			redisstore.WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", s.Driver)
	}
}

func mapOptions(s Store, logger *slog.Logger) []mapstore.Option {
	opts := []mapstore.Option{mapstore.WithLogger(logger)}
	if s.Codec == "json" {
		opts = append(opts, mapstore.WithCodec(entitystore.JSONCodec{}))
	}
	return opts
}

// Recorder returns a Prometheus recorder registered with reg, or metrics.Nop
// when the namespace is empty.
func (c Config) Recorder(reg prometheus.Registerer) (metrics.Recorder, error) {
	if c.Metrics.Namespace == "" {
		return metrics.Nop{}, nil
	}
	return metrics.NewPrometheus(reg, c.Metrics.Namespace)
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
