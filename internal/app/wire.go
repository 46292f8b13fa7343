package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	etcdadapter "github.com/Meesho/BharatMLStack/proxy-pool/internal/adapters/etcd"
	"github.com/Meesho/BharatMLStack/proxy-pool/internal/api"
	"github.com/Meesho/BharatMLStack/proxy-pool/internal/egress"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/config"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/pool"
)

// Runtime bundles the wired components of the api-server.
type Runtime struct {
	Engine   *gin.Engine
	Sessions *pool.Pool[*egress.Session]
	Rotation *egress.Rotation

	closers []func()
}

// Close shuts the session pool down and releases adapter resources.
func (r *Runtime) Close() {
	r.Sessions.Shutdown()
	for _, fn := range r.closers {
		fn()
	}
}

// BuildRuntime wires the egress rotation, the session pool and the HTTP
// surface from the process environment.
func BuildRuntime() (*Runtime, error) {
	envCfg := config.Instance()

	rotationCfg := egress.RotationConfig{
		MaxGiveOuts:   envCfg.EgressMaxGiveOuts,
		MaxTimeouts:   envCfg.EgressMaxTimeouts,
		MaxUses:       envCfg.EgressMaxUses,
		CooldownOnUse: envCfg.EgressCooldown,
	}

	switch envCfg.EgressSource {
	case "file":
		endpoints, err := egress.LoadProviders(envCfg.EgressProviderGlob)
		if err != nil {
			return nil, err
		}
		glob := envCfg.EgressProviderGlob
		rotationCfg.Replenish = func(r *egress.Rotation) error {
			eps, loadErr := egress.LoadProviders(glob)
			if loadErr != nil {
				return loadErr
			}
			r.Add(eps)
			return nil
		}
		return buildWithRotation(envCfg, egress.NewRotation(rotationCfg, endpoints), nil)
	case "etcd":
		log.Info().Strs("endpoints", envCfg.EtcdEndpoints).Dur("etcd_timeout", envCfg.EtcdTimeout).Msg("initializing etcd endpoint registry")
		etcdClient, err := etcdadapter.NewClient(etcdadapter.ClientConfig{
			Endpoints: envCfg.EtcdEndpoints,
			Username:  envCfg.EtcdUsername,
			Password:  envCfg.EtcdPassword,
			Timeout:   envCfg.EtcdTimeout,
		})
		if err != nil {
			return nil, err
		}

		source := etcdadapter.NewEndpointSource(etcdClient, envCfg.EtcdEndpointPrefix)
		endpoints, err := source.Load(context.Background())
		if err != nil {
			_ = etcdClient.Close()
			return nil, err
		}
		rotationCfg.Replenish = source.Replenisher()

		watchCtx, cancel := context.WithCancel(context.Background())
		closers := []func(){cancel, func() { _ = etcdClient.Close() }}

		rotation := egress.NewRotation(rotationCfg, endpoints)
		go source.Watch(watchCtx, rotation)
		return buildWithRotation(envCfg, rotation, closers)
	default:
		return nil, fmt.Errorf("invalid EGRESS_SOURCE: %q", envCfg.EgressSource)
	}
}

func buildWithRotation(envCfg config.Env, rotation *egress.Rotation, closers []func()) (*Runtime, error) {
	sessions, err := pool.New(pool.Config{
		Name:                 "egress-sessions",
		MaxSize:              envCfg.PoolMaxSize,
		MinSize:              envCfg.PoolMinSize,
		MaxUse:               envCfg.PoolMaxUse,
		MaxIdleAge:           envCfg.PoolMaxIdleAge,
		MaxBorrowWarn:        envCfg.PoolMaxBorrowWarn,
		MaxBorrowKill:        envCfg.PoolMaxBorrowKill,
		HealthCheckEvery:     envCfg.PoolHealthCheckEvery,
		HousekeepingInterval: envCfg.PoolHousekeepingInterval,
		AcquireTimeout:       envCfg.PoolAcquireTimeout,
	}, egress.PoolHooks(rotation))
	if err != nil {
		for _, fn := range closers {
			fn()
		}
		return nil, err
	}

	if envCfg.AppEnv == "prod" || envCfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(metricsMiddleware())
	api.NewHandler(sessions, rotation).Register(engine)

	return &Runtime{
		Engine:   engine,
		Sessions: sessions,
		Rotation: rotation,
		closers:  closers,
	}, nil
}
