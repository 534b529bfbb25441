package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ProvisioningProfile holds the tunables of the provisioning workflow that
// operators may change without a restart.
type ProvisioningProfile struct {
	InstanceType    string `mapstructure:"instanceType"`
	ImageLabel      string `mapstructure:"imageLabel"`
	PreferredRegion string `mapstructure:"preferredRegion"`
	EmailSubject    string `mapstructure:"emailSubject"`
}

func DefaultProvisioningProfile(cfg Config) ProvisioningProfile {
	return ProvisioningProfile{
		InstanceType: cfg.Linode.InstanceType,
		ImageLabel:   cfg.Linode.ImageLabel,
		EmailSubject: "Your streaming server is ready",
	}
}

type ProvisioningProfileHolder struct {
	current atomic.Value // holds ProvisioningProfile
}

// NewStaticProfileHolder returns a holder that never reloads.
func NewStaticProfileHolder(profile ProvisioningProfile) *ProvisioningProfileHolder {
	holder := &ProvisioningProfileHolder{}
	holder.current.Store(profile)
	return holder
}

func NewProvisioningProfileHolder(cfg Config, log *zap.Logger) (*ProvisioningProfileHolder, error) {
	v := viper.New()

	v.SetConfigName("provisioning")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/streamgate")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STREAMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultProvisioningProfile(cfg)
	v.SetDefault("provisioning.instanceType", defaults.InstanceType)
	v.SetDefault("provisioning.imageLabel", defaults.ImageLabel)
	v.SetDefault("provisioning.preferredRegion", defaults.PreferredRegion)
	v.SetDefault("provisioning.emailSubject", defaults.EmailSubject)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var profile ProvisioningProfile
	if err := v.UnmarshalKey("provisioning", &profile); err != nil {
		return nil, err
	}
	if err := validateProvisioningProfile(profile); err != nil {
		return nil, err
	}

	holder := NewStaticProfileHolder(profile)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.provisioning")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ProvisioningProfile
		if err := v.UnmarshalKey("provisioning", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateProvisioningProfile(updated); err != nil {
			log.Warn("invalid profile ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("profile reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ProvisioningProfileHolder) Get() ProvisioningProfile {
	return h.current.Load().(ProvisioningProfile)
}

func validateProvisioningProfile(p ProvisioningProfile) error {
	if strings.TrimSpace(p.InstanceType) == "" {
		return errors.New("provisioning.instanceType cannot be empty")
	}
	return nil
}
