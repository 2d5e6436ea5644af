package main

import (
	"context"

	"go.uber.org/fx"

	"github.com/lumenmarkets/streamconn/internal/cli"
	"github.com/lumenmarkets/streamconn/internal/logging"
)

func main() {
	fx.New(
		fx.Provide(newLogger),
		cli.Module,
	).Run()
}

func newLogger(lc fx.Lifecycle) (logging.ApplicationLogger, error) {
	zapLogger, err := logging.NewLogger("info", false)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return zapLogger.Sync()
		},
	})
	return logging.NewApplicationLogger(zapLogger), nil
}
