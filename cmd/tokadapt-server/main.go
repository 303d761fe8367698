package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/tokadapt-server/pkg/adapter/server"
	"github.com/code-payments/tokadapt-server/pkg/grpc/app"
)

func main() {
	if err := app.Run(server.NewApp(server.WithEnvConfigs())); err != nil {
		logrus.StandardLogger().WithError(err).Error("error running tokadapt server")
		os.Exit(1)
	}
}
