//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MT5Hub/pkg/config"
	"MT5Hub/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvidePrometheusRegistry,
		ProvideMetrics,
		ProvideClock,

		// Storage and delivery
		ProvideRedisCache,
		ProvidePermissionStore,
		ProvideBalanceHistory,
		ProvideStreamHub,
		ProvideReportSink,
		ProvideNotifier,

		// Use cases
		ProvideAuthenticator,
		ProvideRegistry,
		ProvideSignalBatcher,
		ProvideWatchdog,
		ProvideChangeReporter,
		ProvideTelemetryService,
		ProvideOperatorService,

		// Transport
		ProvideLimiter,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
