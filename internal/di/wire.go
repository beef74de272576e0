//go:build wireinject
// +build wireinject

package di

import (
	"VolPull/pkg/config"
	"VolPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideStore,
		ProvideCache,
		ProvidePublisher,
		ProvideOptionProvider,
		ProvideRateSource,
		ProvideCalendar,

		// Domain services
		ProvideRateProvider,
		ProvideNormalizer,

		// Use cases
		ProvideRateIngestor,
		ProvideIngestScheduler,
		ProvideHistoryRunner,

		// Application
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
