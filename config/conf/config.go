package conf

import (
	"errors"
	"strings"
)

const (
	DefaultPaynowURL      = "https://www.paynow.co.zw/interface/initiatetransaction"
	DefaultTimeoutSeconds = 30
)

type Config struct {
	DBHost string `json:"DB_HOST"`

	DBUser string `json:"DB_USER"`

	DBPassword string `json:"DB_PASSWORD"`

	DBPort string `json:"DB_PORT"`

	DBDatabase string `json:"DB_DATABASE"`

	GRPCPort string `json:"GRPC_PORT"`

	HTTPPort string `json:"HTTP_PORT"`

	MetricsPort string `json:"METRICS_PORT"`

	ZipkinEndpoint string `json:"ZIPKIN_ENDPOINT"`

	ApplicationEnv string `json:"APP_ENV"`

	ApplicationName string `json:"APPLICATION_NAME"`

	KafkaBrokerAddress string `json:"KAFKA_BROKER_ADDRESS"`

	LogLevel string `json:"LOG_LEVEL"`

	PaynowURL string `json:"PAYNOW_URL"`

	PaynowUserID string `json:"PAYNOW_USER_ID"`

	PaynowKey string `json:"PAYNOW_KEY"`

	PaynowSiteName string `json:"PAYNOW_SITE_NAME"`

	// PaynowWWWRoot is the public base url the gateway calls back into.
	PaynowWWWRoot string `json:"PAYNOW_WWWROOT"`

	PaynowInsecureSkipVerify bool `json:"PAYNOW_INSECURE_SKIP_VERIFY"`

	PaynowTimeoutSeconds int `json:"PAYNOW_TIMEOUT_SECONDS"`

	PaynowVerifyConfirm bool `json:"PAYNOW_VERIFY_CONFIRM"`

	PaynowCurrencies []string `json:"PAYNOW_CURRENCIES"`

	PaynowDefaultCost string `json:"PAYNOW_DEFAULT_COST"`
}

// Defaults fills the optional settings left empty by the config file.
func (c *Config) Defaults() {
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.GRPCPort == "" {
		c.GRPCPort = "9090"
	}
	if c.MetricsPort == "" {
		c.MetricsPort = "9100"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "PAYNOW"
	}
	if c.ApplicationEnv == "" {
		c.ApplicationEnv = "DEV"
	}
	if c.PaynowURL == "" {
		c.PaynowURL = DefaultPaynowURL
	}
	if c.PaynowTimeoutSeconds <= 0 {
		c.PaynowTimeoutSeconds = DefaultTimeoutSeconds
	}
	if len(c.PaynowCurrencies) == 0 {
		c.PaynowCurrencies = []string{"USD"}
	}
	if c.PaynowDefaultCost == "" {
		c.PaynowDefaultCost = "0"
	}
	c.PaynowWWWRoot = strings.TrimRight(c.PaynowWWWRoot, "/")
}

func (c *Config) Validate() error {
	var missing []string
	if c.PaynowUserID == "" {
		missing = append(missing, "PAYNOW_USER_ID")
	}
	if c.PaynowKey == "" {
		missing = append(missing, "PAYNOW_KEY")
	}
	if c.PaynowWWWRoot == "" {
		missing = append(missing, "PAYNOW_WWWROOT")
	}
	if c.DBHost == "" || c.DBDatabase == "" {
		missing = append(missing, "DB_HOST/DB_DATABASE")
	}
	if len(missing) > 0 {
		return errors.New("missing configuration: " + strings.Join(missing, ", "))
	}
	return nil
}
