// internal/config/settings.go
package config

import "github.com/spf13/viper"

// SettingType represents the type of a setting
type SettingType string

const (
	// String type for string settings
	String SettingType = "string"
	// Bool type for boolean settings
	Bool SettingType = "bool"
	// StringSlice type for string slice settings
	StringSlice SettingType = "stringSlice"
)

// Setting defines a configuration setting
type Setting struct {
	// Name is the name of the setting
	Name string
	// Short is a short description of the setting
	Short string
	// Type is the type of the setting
	Type SettingType
	// Default is the default value of the setting
	Default interface{}
	// Env is the environment variable name for the setting
	Env string
	// Required indicates whether the setting is required
	Required bool
}

// SettingList is a list of settings
type SettingList []Setting

// PopulateViperDefaults sets default values for all settings in Viper
func (sl SettingList) PopulateViperDefaults(v *viper.Viper) {
	for _, s := range sl {
		v.SetDefault(s.Name, s.Default)
	}
}

// Settings defines all application settings
var Settings = SettingList{
	// Server settings
	{
		Name:    "SERVER_ADDR",
		Short:   "Address on which the server listens",
		Type:    String,
		Default: ":8000",
		Env:     "SERVER_ADDR",
	},
	{
		Name:    "METRICS_ADDR",
		Short:   "Address on which the metrics server listens",
		Type:    String,
		Default: ":9090",
		Env:     "METRICS_ADDR",
	},
	{
		Name:    "SHUTDOWN_TIMEOUT",
		Short:   "Maximum time to wait for graceful shutdown",
		Type:    String,
		Default: "30s",
		Env:     "SHUTDOWN_TIMEOUT",
	},

	// Backend settings
	{
		Name:     "BACKEND_URL",
		Short:    "Base URL of the compute backend",
		Type:     String,
		Default:  "",
		Env:      "BACKEND_URL",
		Required: true,
	},
	{
		Name:    "BACKEND_TIMEOUT",
		Short:   "Connect and response-header timeout for backend requests",
		Type:    String,
		Default: "30s",
		Env:     "BACKEND_TIMEOUT",
	},

	// Identity store settings
	{
		Name:    "IDENTITY_STORE_MODE",
		Short:   "Identity store implementation (local, remote)",
		Type:    String,
		Default: "local",
		Env:     "IDENTITY_STORE_MODE",
	},
	{
		Name:    "IDENTITY_STORE_URL",
		Short:   "Base URL of the remote identity store",
		Type:    String,
		Default: "",
		Env:     "IDENTITY_STORE_URL",
	},
	{
		Name:    "IDENTITY_STORE_TIMEOUT",
		Short:   "Timeout for remote identity store calls",
		Type:    String,
		Default: "5s",
		Env:     "IDENTITY_STORE_TIMEOUT",
	},
	{
		Name:    "IDENTITY_DB_PATH",
		Short:   "Path to the local identity store database",
		Type:    String,
		Default: "computegate.db",
		Env:     "IDENTITY_DB_PATH",
	},
	{
		Name:    "ALLOWED_EMAIL_DOMAINS",
		Short:   "Email domains allowed to create accounts (empty = allow all)",
		Type:    StringSlice,
		Default: []string{},
		Env:     "ALLOWED_EMAIL_DOMAINS",
	},

	// Session settings
	{
		Name:    "SESSION_COOKIE_NAME",
		Short:   "Name of the session cookie",
		Type:    String,
		Default: "computegate_session",
		Env:     "SESSION_COOKIE_NAME",
	},
	{
		Name:    "SESSION_TTL",
		Short:   "Lifetime of issued sessions",
		Type:    String,
		Default: "24h",
		Env:     "SESSION_TTL",
	},
	{
		Name:    "SESSION_CACHE_TTL",
		Short:   "Maximum staleness of cached session resolutions (0 disables)",
		Type:    String,
		Default: "30s",
		Env:     "SESSION_CACHE_TTL",
	},
	{
		Name:    "SESSION_JWT_SECRET",
		Short:   "Secret key for signing session tokens (local store)",
		Type:    String,
		Default: "",
		Env:     "SESSION_JWT_SECRET",
	},

	// OIDC settings (local store login flow)
	{
		Name:    "OIDC_ISSUER",
		Short:   "OIDC issuer URL for the login flow",
		Type:    String,
		Default: "",
		Env:     "OIDC_ISSUER",
	},
	{
		Name:    "OIDC_CLIENT_ID",
		Short:   "OIDC client ID",
		Type:    String,
		Default: "",
		Env:     "OIDC_CLIENT_ID",
	},
	{
		Name:    "OIDC_CLIENT_SECRET",
		Short:   "OIDC client secret",
		Type:    String,
		Default: "",
		Env:     "OIDC_CLIENT_SECRET",
	},
	{
		Name:    "OIDC_REDIRECT_URL",
		Short:   "OIDC redirect URL",
		Type:    String,
		Default: "",
		Env:     "OIDC_REDIRECT_URL",
	},
	{
		Name:    "OIDC_SCOPES",
		Short:   "OIDC scopes",
		Type:    StringSlice,
		Default: []string{"openid", "email", "profile"},
		Env:     "OIDC_SCOPES",
	},

	// Observability
	{
		Name:    "LOG_LEVEL",
		Short:   "Logging level",
		Type:    String,
		Default: "info",
		Env:     "LOG_LEVEL",
	},
}
