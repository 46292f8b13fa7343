package main

import (
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/proxy-pool/internal/app"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/config"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/logger"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/metric"
)

func main() {
	config.InitEnv()
	logger.Init()
	metric.Init()

	runtime, err := app.BuildRuntime()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build api-server runtime")
	}

	server := app.NewServer(config.Instance().AppPort, runtime.Engine)
	err = server.Run()
	runtime.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("api-server exited with error")
	}
}
