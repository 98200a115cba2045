package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PayformsSettings are the operator-tunable payform rules read from payforms.yml.
type PayformsSettings struct {
	PaidOrderStatus         string            `mapstructure:"paid_order_status"`
	TerminalPayableStatuses []string          `mapstructure:"terminal_payable_statuses"`
	DefaultExpirationHours  int               `mapstructure:"default_expiration_hours"`
	TokenRefreshBuffer      time.Duration     `mapstructure:"token_refresh_buffer"`
	ReferencePrefix         string            `mapstructure:"reference_prefix"`
	PayableStatusMap        map[string]string `mapstructure:"payable_status_map"`
}

func DefaultPayformsSettings() PayformsSettings {
	return PayformsSettings{
		PaidOrderStatus:         "paid",
		TerminalPayableStatuses: []string{"completed", "cancelled", "paid"},
		DefaultExpirationHours:  12,
		TokenRefreshBuffer:      5 * time.Minute,
		ReferencePrefix:         "PAY-",
		PayableStatusMap: map[string]string{
			"paid":      "approved",
			"completed": "approved",
			"cancelled": "canceled",
		},
	}
}

// IsTerminalPayableStatus reports whether a payable status is final.
func (s PayformsSettings) IsTerminalPayableStatus(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return false
	}
	for _, terminal := range s.TerminalPayableStatuses {
		if strings.ToLower(strings.TrimSpace(terminal)) == status {
			return true
		}
	}
	return false
}

type PayformsSettingsHolder struct {
	current atomic.Value // holds PayformsSettings
}

// NewStaticSettingsHolder returns a holder that never reloads.
func NewStaticSettingsHolder(settings PayformsSettings) *PayformsSettingsHolder {
	holder := &PayformsSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func NewPayformsSettingsHolder(cfg Config, log *zap.Logger) (*PayformsSettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.payforms")

	v := viper.New()
	if cfg.Payforms.SettingsPath != "" {
		v.SetConfigFile(filepath.Clean(cfg.Payforms.SettingsPath))
	} else {
		v.SetConfigName("payforms")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/payforms")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYFORMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayformsSettings()
	v.SetDefault("payforms.paid_order_status", defaults.PaidOrderStatus)
	v.SetDefault("payforms.terminal_payable_statuses", defaults.TerminalPayableStatuses)
	v.SetDefault("payforms.default_expiration_hours", defaults.DefaultExpirationHours)
	v.SetDefault("payforms.token_refresh_buffer", defaults.TokenRefreshBuffer)
	v.SetDefault("payforms.reference_prefix", defaults.ReferencePrefix)
	v.SetDefault("payforms.payable_status_map", defaults.PayableStatusMap)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	settings, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSettingsHolder(settings)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettings(v)
		if err != nil {
			log.Warn("payforms settings reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("payforms settings reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PayformsSettingsHolder) Get() PayformsSettings {
	if h == nil {
		return DefaultPayformsSettings()
	}
	settings, ok := h.current.Load().(PayformsSettings)
	if !ok {
		return DefaultPayformsSettings()
	}
	return settings
}

func decodeSettings(v *viper.Viper) (PayformsSettings, error) {
	var settings PayformsSettings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalKey("payforms", &settings, hook); err != nil {
		return PayformsSettings{}, err
	}
	if err := validatePayformsSettings(settings); err != nil {
		return PayformsSettings{}, err
	}
	return settings, nil
}

func validatePayformsSettings(s PayformsSettings) error {
	if strings.TrimSpace(s.PaidOrderStatus) == "" {
		return errors.New("payforms.paid_order_status cannot be empty")
	}
	if len(s.TerminalPayableStatuses) == 0 {
		return errors.New("payforms.terminal_payable_statuses cannot be empty")
	}
	if s.DefaultExpirationHours < 0 {
		return errors.New("payforms.default_expiration_hours cannot be negative")
	}
	if s.TokenRefreshBuffer < 0 {
		return errors.New("payforms.token_refresh_buffer cannot be negative")
	}
	if strings.TrimSpace(s.ReferencePrefix) == "" {
		return errors.New("payforms.reference_prefix cannot be empty")
	}
	return nil
}
