package config

import (
	"sync"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig backs the export queue, task status and the record cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()

		redisConfig = &RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		}
		if overlay := GetAppConfig().overlay; overlay != nil && overlay.Redis != nil {
			o := overlay.Redis
			if o.Addr != "" {
				redisConfig.Addr = o.Addr
			}
			if o.Password != "" {
				redisConfig.Password = o.Password
			}
			if o.DB != 0 {
				redisConfig.DB = o.DB
			}
		}
	})
	return redisConfig
}
