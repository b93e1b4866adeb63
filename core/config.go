package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

const defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

type (
	ServerConfig struct {
		Address                   string
		DebugAddress              string
		Host                      string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
		DisableReqLogs            bool
		// AuthRateLimit is the number of login/password-reset requests allowed per minute per client.
		AuthRateLimit int
	}

	DatabaseConfig struct {
		Engine        string // "postgres" | "memory"
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		DataDir   string
		IndexPath string // empty: in-memory search index
	}

	AgentConfig struct {
		Runtime   string // "anthropic" | "remote"
		Model     string
		APIKey    string
		BaseURL   string
		MaxTokens int
		MaxTurns  int
		RemoteURL string
		RolesFile string
	}

	PortalConfig struct {
		TokenTimeoutDelta time.Duration
		DefaultLanguage   string
	}

	Config struct {
		Env       string
		Build     string
		Debug     bool
		TestMode  bool
		AppName   string
		SecretKey string
		WorkDir   string

		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		SendgridApiKey            string
		RollbarToken              string
		defaultFromEmail          string

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Agent    AgentConfig
		Portal   PortalConfig
	}
)

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + db.Port
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
}

// NewConfig loads the configuration for the current environment (ENV: DEV (default), TEST, QA, PROD).
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v, env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := fromViper(v, env, workDir)
	if err := conf.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Pedagogical Engine")
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.jwtExpirationDelta", 15*time.Minute)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.authRateLimit", 10)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "pedagogy")
	v.SetDefault("database.user", "pedagogy")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("storage.dataDir", "data")
	v.SetDefault("storage.indexPath", "")

	v.SetDefault("agent.runtime", "anthropic")
	v.SetDefault("agent.model", "claude-sonnet-4-5")
	v.SetDefault("agent.apiKey", "")
	v.SetDefault("agent.baseURL", "")
	v.SetDefault("agent.maxTokens", 4096)
	v.SetDefault("agent.maxTurns", 8)
	v.SetDefault("agent.remoteURL", "")
	v.SetDefault("agent.rolesFile", "")

	v.SetDefault("portal.tokenTimeoutDelta", 30*24*time.Hour)
	v.SetDefault("portal.defaultLanguage", "en")
}

func fromViper(v *viper.Viper, env, workDir string) *Config {
	dataDir := v.GetString("storage.dataDir")
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(workDir, dataDir)
	}
	return &Config{
		Env:       env,
		Build:     v.GetString("build"),
		Debug:     v.GetBool("debug"),
		TestMode:  v.GetBool("testMode"),
		AppName:   v.GetString("appName"),
		SecretKey: v.GetString("secretKey"),
		WorkDir:   workDir,

		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),

		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debugAddress"),
			Host:                      v.GetString("server.host"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			AuthRateLimit:             v.GetInt("server.authRateLimit"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			IndexPath: v.GetString("storage.indexPath"),
		},
		Agent: AgentConfig{
			Runtime:   v.GetString("agent.runtime"),
			Model:     v.GetString("agent.model"),
			APIKey:    v.GetString("agent.apiKey"),
			BaseURL:   v.GetString("agent.baseURL"),
			MaxTokens: v.GetInt("agent.maxTokens"),
			MaxTurns:  v.GetInt("agent.maxTurns"),
			RemoteURL: v.GetString("agent.remoteURL"),
			RolesFile: v.GetString("agent.rolesFile"),
		},
		Portal: PortalConfig{
			TokenTimeoutDelta: v.GetDuration("portal.tokenTimeoutDelta"),
			DefaultLanguage:   v.GetString("portal.defaultLanguage"),
		},
	}
}

// Validate checks the settings that must be provided outside of DEV|TEST.
func (conf *Config) Validate() error {
	checks := []vala.Checker{
		vala.StringNotEmpty(conf.AppName, "appName"),
		vala.StringNotEmpty(conf.Storage.DataDir, "storage.dataDir"),
		oneOf(conf.Agent.Runtime, "agent.runtime", "anthropic", "remote"),
		oneOf(conf.Database.Engine, "database.engine", "postgres", "memory"),
	}
	if conf.Agent.Runtime == "remote" {
		checks = append(checks, vala.StringNotEmpty(conf.Agent.RemoteURL, "agent.remoteURL"))
	}
	if !(conf.Debug || conf.TestMode) {
		checks = append(checks,
			notEqual(conf.SecretKey, defaultSecretKey, "secretKey"),
			vala.StringNotEmpty(conf.SendgridApiKey, "sendgridApiKey"),
			vala.StringNotEmpty(conf.RollbarToken, "rollbarToken"),
		)
		if conf.Agent.Runtime == "anthropic" {
			checks = append(checks, vala.StringNotEmpty(conf.Agent.APIKey, "agent.apiKey"))
		}
	}
	return vala.BeginValidation().Validate(checks...).Check()
}

func oneOf(val, name string, allowed ...string) vala.Checker {
	return func() (bool, string) {
		for _, a := range allowed {
			if val == a {
				return true, ""
			}
		}
		return false, name + " must be one of: " + strings.Join(allowed, ", ")
	}
}

func notEqual(val, forbidden, name string) vala.Checker {
	return func() (bool, string) {
		return val != forbidden, name + " must be set"
	}
}

// NewTestConfig returns a debug configuration rooted at dataDir, suitable for tests.
func NewTestConfig(dataDir string) *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v, "TEST")
	v.Set("storage.dataDir", dataDir)
	v.Set("database.engine", "memory")
	v.Set("secretKey", "secret")
	return fromViper(v, "TEST", Getwd())
}
