package lockout

import (
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideLockoutService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	return NewService(db, cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideLockoutService),
)
