package twofactor

import (
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"github.com/learnhive/authcore/services/users"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideTwoFactorService(db *gorm.DB, cfg *config.Config, userStore users.Store, logger *logging.Service) *Service {
	return NewService(db, cfg, userStore, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideTwoFactorService),
)
