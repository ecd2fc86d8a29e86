package cli

import (
	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/crypto"
	"github.com/mokkoji/syncd/internal/sync/application"
	"github.com/mokkoji/syncd/internal/sync/application/workers"
	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

// App holds the CLI application dependencies.
type App struct {
	Dispatcher  *application.Dispatcher
	Connections domain.ConnectionRepository
	Codec       crypto.TokenCodec
	Registry    *provider.Registry
	Jobs        *workers.Pool

	// CurrentUserID is the acting user for all commands.
	CurrentUserID uuid.UUID
}

var app *App

// SetApp sets the CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the CLI application instance, nil when the container
// failed to initialize.
func GetApp() *App {
	return app
}
