package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// build is set at link time: -ldflags "-X github.com/alyxedu/alyx/core.build=..."
var build = "develop"

type (
	Config struct {
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server   ServerConfig
		Database DatabaseConfig
		LLM      LLMConfig
		Grading  GradingConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		DisableReqLogs            bool
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// LLMConfig configures the hosted chat-completion endpoint used for grading and quiz generation.
	LLMConfig struct {
		BaseURL            string
		APIKey             string
		Model              string
		Timeout            time.Duration
		GradingTemperature float64
		QuizTemperature    float64
	}

	// GradingConfig holds the open-ended grading policy.
	GradingConfig struct {
		CorrectThreshold float64 // fraction of max points at or above which an answer is correct
		FallbackCredit   float64 // fraction of max points awarded when the model is unavailable
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the configuration for the current environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "ALYX")
	v.SetDefault("secretKey", "l7+w2u0q#m@4x$9kz!c1v&8sn%e3j(r5h)p6b^d0g=ya-ft")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "alyx")
	v.SetDefault("database.user", "alyx")
	v.SetDefault("database.password", "alyx")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("llm.baseURL", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "openai/gpt-3.5-turbo")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.gradingTemperature", 0.3)
	v.SetDefault("llm.quizTemperature", 0.7)

	v.SetDefault("grading.correctThreshold", 0.7)
	v.SetDefault("grading.fallbackCredit", 0.5)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Build:           build,
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridApiKey:  v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
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
		LLM: LLMConfig{
			BaseURL:            strings.TrimRight(v.GetString("llm.baseURL"), "/"),
			APIKey:             v.GetString("llm.apiKey"),
			Model:              v.GetString("llm.model"),
			Timeout:            v.GetDuration("llm.timeout"),
			GradingTemperature: v.GetFloat64("llm.gradingTemperature"),
			QuizTemperature:    v.GetFloat64("llm.quizTemperature"),
		},
		Grading: GradingConfig{
			CorrectThreshold: v.GetFloat64("grading.correctThreshold"),
			FallbackCredit:   v.GetFloat64("grading.fallbackCredit"),
		},
	}
	if conf.LLM.APIKey == "" {
		conf.LLM.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	}

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		from = &mail.Address{Address: v.GetString("defaultFromEmail")}
	}
	if from.Name == "" {
		from.Name = conf.AppName
	}
	conf.DefaultFromEmail = *from

	return conf
}

// NewTestConfig returns a configuration suitable for tests; nothing is read from the environment.
func NewTestConfig() *Config {
	return &Config{
		Build:            "test",
		Env:              "TEST",
		Debug:            false,
		TestMode:         true,
		AppName:          "ALYX",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:5173",
		DefaultFromEmail: mail.Address{Name: "ALYX", Address: "noreply@localhost"},
		Server: ServerConfig{
			Host:                      "localhost",
			DisableReqLogs:            true,
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		LLM: LLMConfig{
			Model:              "openai/gpt-3.5-turbo",
			Timeout:            5 * time.Second,
			GradingTemperature: 0.3,
			QuizTemperature:    0.7,
		},
		Grading: GradingConfig{
			CorrectThreshold: 0.7,
			FallbackCredit:   0.5,
		},
	}
}
