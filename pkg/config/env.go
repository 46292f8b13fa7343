package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Env struct {
	AppPort     int
	AppName     string
	AppLogLevel string
	AppEnv      string

	PoolMaxSize              int
	PoolMinSize              int
	PoolMaxUse               int64
	PoolMaxIdleAge           time.Duration
	PoolMaxBorrowWarn        time.Duration
	PoolMaxBorrowKill        time.Duration
	PoolHealthCheckEvery     int
	PoolHousekeepingInterval time.Duration
	PoolAcquireTimeout       time.Duration

	EgressSource       string
	EgressProviderGlob string
	EgressMaxGiveOuts  int64
	EgressMaxTimeouts  int64
	EgressMaxUses      int64
	EgressCooldown     time.Duration

	EtcdEndpoints      []string
	EtcdUsername       string
	EtcdPassword       string
	EtcdTimeout        time.Duration
	EtcdEndpointPrefix string
}

var (
	initialized bool
	once        sync.Once
	instance    Env
	initError   error
)

func Load() (Env, error) {
	port := 8080
	if raw := strings.TrimSpace(os.Getenv("APP_PORT")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 {
			return Env{}, fmt.Errorf("invalid APP_PORT: %q", raw)
		}
		port = p
	}

	maxSize, err := intEnv("POOL_MAX_SIZE", 0)
	if err != nil {
		return Env{}, err
	}
	minSize, err := intEnv("POOL_MIN_SIZE", 1)
	if err != nil {
		return Env{}, err
	}
	maxUse, err := int64Env("POOL_MAX_USE", 0)
	if err != nil {
		return Env{}, err
	}
	healthEvery, err := intEnv("POOL_HEALTH_CHECK_EVERY", 1)
	if err != nil {
		return Env{}, err
	}
	maxIdleAge, err := durationEnv("POOL_MAX_IDLE_AGE_SECONDS", 0)
	if err != nil {
		return Env{}, err
	}
	borrowWarn, err := durationEnv("POOL_MAX_BORROW_WARN_SECONDS", 0)
	if err != nil {
		return Env{}, err
	}
	borrowKill, err := durationEnv("POOL_MAX_BORROW_KILL_SECONDS", 0)
	if err != nil {
		return Env{}, err
	}
	housekeeping, err := durationEnv("POOL_HOUSEKEEPING_SECONDS", 0)
	if err != nil {
		return Env{}, err
	}

	acquireTimeout := 5 * time.Second
	if raw := strings.TrimSpace(os.Getenv("POOL_ACQUIRE_TIMEOUT_MILLIS")); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return Env{}, fmt.Errorf("invalid POOL_ACQUIRE_TIMEOUT_MILLIS: %q", raw)
		}
		acquireTimeout = time.Duration(ms) * time.Millisecond
	}

	egressSource := "file"
	if raw := strings.TrimSpace(os.Getenv("EGRESS_SOURCE")); raw != "" {
		if raw != "file" && raw != "etcd" {
			return Env{}, fmt.Errorf("invalid EGRESS_SOURCE: %q", raw)
		}
		egressSource = raw
	}
	maxGiveOuts, err := int64Env("EGRESS_MAX_GIVE_OUTS", 0)
	if err != nil {
		return Env{}, err
	}
	maxTimeouts, err := int64Env("EGRESS_MAX_TIMEOUTS", 0)
	if err != nil {
		return Env{}, err
	}
	maxUses, err := int64Env("EGRESS_MAX_USES", 0)
	if err != nil {
		return Env{}, err
	}
	cooldown, err := durationEnv("EGRESS_COOLDOWN_SECONDS", 0)
	if err != nil {
		return Env{}, err
	}

	etcdTimeout := 5 * time.Second
	if raw := strings.TrimSpace(os.Getenv("ETCD_TIMEOUT_SECONDS")); raw != "" {
		sec, err := strconv.Atoi(raw)
		if err != nil || sec <= 0 {
			return Env{}, fmt.Errorf("invalid ETCD_TIMEOUT_SECONDS: %q", raw)
		}
		etcdTimeout = time.Duration(sec) * time.Second
	}

	endpoints := []string{"127.0.0.1:2379"}
	if raw := strings.TrimSpace(os.Getenv("ETCD_ENDPOINTS")); raw != "" {
		endpoints = parseEtcdEndpoints(raw)
	}

	endpointPrefix := "/egress/endpoints"
	if raw := strings.TrimSpace(os.Getenv("ETCD_ENDPOINT_PREFIX")); raw != "" {
		endpointPrefix = raw
	}

	return Env{
		AppPort:     port,
		AppName:     strings.TrimSpace(os.Getenv("APP_NAME")),
		AppLogLevel: strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")),
		AppEnv:      strings.TrimSpace(os.Getenv("APP_ENV")),

		PoolMaxSize:              maxSize,
		PoolMinSize:              minSize,
		PoolMaxUse:               maxUse,
		PoolMaxIdleAge:           maxIdleAge,
		PoolMaxBorrowWarn:        borrowWarn,
		PoolMaxBorrowKill:        borrowKill,
		PoolHealthCheckEvery:     healthEvery,
		PoolHousekeepingInterval: housekeeping,
		PoolAcquireTimeout:       acquireTimeout,

		EgressSource:       egressSource,
		EgressProviderGlob: strings.TrimSpace(os.Getenv("EGRESS_PROVIDER_GLOB")),
		EgressMaxGiveOuts:  maxGiveOuts,
		EgressMaxTimeouts:  maxTimeouts,
		EgressMaxUses:      maxUses,
		EgressCooldown:     cooldown,

		EtcdEndpoints:      endpoints,
		EtcdUsername:       strings.TrimSpace(os.Getenv("ETCD_USERNAME")),
		EtcdPassword:       os.Getenv("ETCD_PASSWORD"),
		EtcdTimeout:        etcdTimeout,
		EtcdEndpointPrefix: endpointPrefix,
	}, nil
}

func intEnv(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func int64Env(name string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || sec < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func parseEtcdEndpoints(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func InitEnv() {
	if initialized {
		log.Debug().Msg("Env already initialized!")
		return
	}
	once.Do(func() {
		viper.AutomaticEnv()
		instance, initError = Load()
		if initError != nil {
			log.Panic().Err(initError).Msg("failed to load env")
		}
		initialized = true
		log.Info().Msg("Env initialized!")
	})
}

func Instance() Env {
	InitEnv()
	if initError != nil {
		panic(initError)
	}
	return instance
}
