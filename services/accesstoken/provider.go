package accesstoken

import (
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/fx"
)

func ProvideAccessTokenService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideAccessTokenService),
)
