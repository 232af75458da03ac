package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// CheckoutConfig controls how hosted checkout sessions are built.
type CheckoutConfig struct {
	Currency          string `mapstructure:"currency"`
	SuccessPath       string `mapstructure:"successPath"`
	CancelPath        string `mapstructure:"cancelPath"`
	ServiceFeePercent string `mapstructure:"serviceFeePercent"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Currency:          "usd",
		SuccessPath:       "/booking/payment/success",
		CancelPath:        "/booking/payment/cancel",
		ServiceFeePercent: "0",
	}
}

// FeeRate returns the service fee as a fraction (5% -> 0.05).
func (c CheckoutConfig) FeeRate() decimal.Decimal {
	pct, err := decimal.NewFromString(strings.TrimSpace(c.ServiceFeePercent))
	if err != nil {
		return decimal.Zero
	}
	return pct.Div(decimal.NewFromInt(100))
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewStaticCheckoutConfigHolder returns a holder that never reloads.
func NewStaticCheckoutConfigHolder(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewCheckoutConfigHolder() (*CheckoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/servicepoint/config") // Volume-mounted config
	v.AddConfigPath("/etc/servicepoint")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	v.SetEnvPrefix("SERVICEPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.currency", defaults.Currency)
	v.SetDefault("checkout.successPath", defaults.SuccessPath)
	v.SetDefault("checkout.cancelPath", defaults.CancelPath)
	v.SetDefault("checkout.serviceFeePercent", defaults.ServiceFeePercent)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return nil, err
	}
	if err := validateCheckoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticCheckoutConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CheckoutConfig
		if err := v.UnmarshalKey("checkout", &updated); err != nil {
			log.Printf("[checkout-config] reload failed: %v", err)
			return
		}
		if err := validateCheckoutConfig(updated); err != nil {
			log.Printf("[checkout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[checkout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	if h == nil {
		return DefaultCheckoutConfig()
	}
	return h.current.Load().(CheckoutConfig)
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	currency := strings.TrimSpace(cfg.Currency)
	if len(currency) != 3 {
		return errors.New("checkout.currency must be a 3-letter ISO code")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.SuccessPath), "/") {
		return errors.New("checkout.successPath must start with /")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.CancelPath), "/") {
		return errors.New("checkout.cancelPath must start with /")
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(cfg.ServiceFeePercent))
	if err != nil {
		return errors.New("checkout.serviceFeePercent must be a decimal")
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("checkout.serviceFeePercent must be between 0 and 100")
	}
	return nil
}
