package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// TwilioConfig carries the credentials for the mu-law telephony dialer.
type TwilioConfig struct {
	AccountSid string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

// VonageConfig carries the credentials for the linear16 telephony dialer.
type VonageConfig struct {
	ApplicationID  string `mapstructure:"application_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	ApiKey         string `mapstructure:"api_key"`
	ApiSecret      string `mapstructure:"api_secret"`
	FromNumber     string `mapstructure:"from_number"`
}

// RoomConfig carries the signing secret for room access tokens.
type RoomConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
}

// ElevenLabsConfig carries the conversational agent credentials.
type ElevenLabsConfig struct {
	ApiKey  string `mapstructure:"api_key"`
	BaseUrl string `mapstructure:"base_url"`
}

// PredixionConfig carries the room-based agent dispatch endpoint.
type PredixionConfig struct {
	ApiUrl string `mapstructure:"api_url"`
	ApiKey string `mapstructure:"api_key"`
}

// DemoConfig seeds the inbound-call demo context until a real context
// resolver is plugged in.
type DemoConfig struct {
	AgentID string `mapstructure:"agent_id"`
}

// Application config structure
type GatewayConfig struct {
	Name        string `mapstructure:"service_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Host        string `mapstructure:"host" validate:"required"`
	Port        int    `mapstructure:"port" validate:"required"`
	LogLevel    string `mapstructure:"log_level" validate:"required"`
	LogPath     string `mapstructure:"log_path"`

	// PublicHost is the externally reachable host[:port] used when building
	// connection directives; falls back to Host:Port when unset.
	PublicHost string `mapstructure:"public_host"`

	// ApiKeys is the comma-separated allow list for the outbound-call surface.
	ApiKeys []string `mapstructure:"api_keys"`

	DefaultDialer string `mapstructure:"default_dialer" validate:"required"`
	DefaultAgent  string `mapstructure:"default_agent" validate:"required"`

	Twilio     TwilioConfig     `mapstructure:"twilio"`
	Vonage     VonageConfig     `mapstructure:"vonage"`
	Room       RoomConfig       `mapstructure:"room"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Predixion  PredixionConfig  `mapstructure:"predixionai"`
	Demo       DemoConfig       `mapstructure:"demo"`
}

func (c *GatewayConfig) RapidaEnvironment() utils.RapidaEnvironment {
	return utils.FromEnvironmentStr(c.Environment)
}

func (c *GatewayConfig) IsDevelopment() bool {
	return c.RapidaEnvironment().IsDevelopment()
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil {
		log.Printf("no .env file, reading from env variables")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "voice-gateway")
	v.SetDefault("VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("PUBLIC_HOST", "")
	v.SetDefault("API_KEYS", "")

	v.SetDefault("DEFAULT_DIALER", "twilio")
	v.SetDefault("DEFAULT_AGENT", "elevenlabs")

	v.SetDefault("TWILIO__ACCOUNT_SID", "")
	v.SetDefault("TWILIO__AUTH_TOKEN", "")
	v.SetDefault("TWILIO__FROM_NUMBER", "")

	v.SetDefault("VONAGE__APPLICATION_ID", "")
	v.SetDefault("VONAGE__PRIVATE_KEY_PATH", "")
	v.SetDefault("VONAGE__API_KEY", "")
	v.SetDefault("VONAGE__API_SECRET", "")
	v.SetDefault("VONAGE__FROM_NUMBER", "")

	v.SetDefault("ROOM__TOKEN_SECRET", "")

	v.SetDefault("ELEVENLABS__API_KEY", "")
	v.SetDefault("ELEVENLABS__BASE_URL", "https://api.elevenlabs.io")

	v.SetDefault("PREDIXIONAI__API_URL", "")
	v.SetDefault("PREDIXIONAI__API_KEY", "")

	v.SetDefault("DEMO__AGENT_ID", "")
}

// Getting application config from viper
func GetGatewayConfig(v *viper.Viper) (*GatewayConfig, error) {
	var config GatewayConfig
	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
