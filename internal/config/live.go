package config

import (
	"sync/atomic"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Live holds the current config behind an atomic pointer so the file can be
// edited while the server runs. Identity and seed changes apply to requests
// after the swap; server address and database settings are read at boot and
// stay fixed.
type Live struct {
	ptr atomic.Pointer[Config]
}

func NewLive(cfg Config, v *viper.Viper, log *zap.Logger) *Live {
	l := &Live{}
	l.ptr.Store(&cfg)
	Watch(v, func(next Config) {
		l.ptr.Store(&next)
		log.Named("config").Info("config reloaded",
			zap.Int("identities", len(next.Identities)),
			zap.Int("webhooks", len(next.Webhooks)))
	})
	return l
}

func (l *Live) Current() Config {
	return *l.ptr.Load()
}
