package sessions

import (
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"github.com/learnhive/authcore/services/refreshtoken"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideSessionService(db *gorm.DB, cfg *config.Config, tokens *refreshtoken.Service, logger *logging.Service) *Service {
	service := NewService(db, cfg, tokens, logger)

	if cfg.Session.CleanupInterval > 0 {
		service.StartCleanupWorker()
	}

	return service
}

var Module = fx.Options(
	fx.Provide(ProvideSessionService),
)
