package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Steam    SteamConfig    `yaml:"steam" json:"steam"`
	Game     GameConfig     `yaml:"game" json:"game"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"` // bound on waiting for running operations
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// AuthConfig contains operator token settings
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	JWTSecret     string `yaml:"jwt_secret" json:"-"`
	TokenDuration string `yaml:"token_duration" json:"token_duration"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// StorageConfig contains the per-purpose filesystem roots. Each managed
// server gets one directory named after its ID under every root.
type StorageConfig struct {
	InstallsRoot string `yaml:"installs_root" json:"installs_root"`
	ProfilesRoot string `yaml:"profiles_root" json:"profiles_root"`
	LogsRoot     string `yaml:"logs_root" json:"logs_root"`
	DataDir      string `yaml:"data_dir" json:"data_dir"`
}

// SteamConfig contains SteamCMD settings used for install/update runs
type SteamConfig struct {
	SteamCMDPath   string `yaml:"steamcmd_path" json:"steamcmd_path"`
	AppID          string `yaml:"app_id" json:"app_id"`
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"-"`
	UpdateSchedule string `yaml:"update_schedule" json:"update_schedule"` // cron expression, empty disables
}

// GameConfig contains settings for the dedicated server binary
type GameConfig struct {
	Executable string `yaml:"executable" json:"executable"` // relative to the install directory
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// Default returns the built-in configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Path:           "./data/athena.db",
			MaxConnections: 25,
		},
		Auth: AuthConfig{
			Enabled:       true,
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenDuration: "720h",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			},
		},
		Storage: StorageConfig{
			InstallsRoot: "/var/lib/athena/servers",
			ProfilesRoot: "/var/lib/athena/profiles",
			LogsRoot:     "/var/log/athena",
			DataDir:      "./data",
		},
		Steam: SteamConfig{
			SteamCMDPath: "/usr/games/steamcmd",
			AppID:        "233780",
		},
		Game: GameConfig{
			Executable: "./arma3server_x64",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg, err := LoadFile(GetConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto the defaults without applying
// environment overrides or validation. A missing file yields nil, nil.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"STEAM_USERNAME", &c.Steam.Username},
		{"STEAM_PASSWORD", &c.Steam.Password},
		{"STEAMCMD_PATH", &c.Steam.SteamCMDPath},
		{"DATABASE_PATH", &c.Database.Path},
		{"JWT_SECRET", &c.Auth.JWTSecret},
		{"LOG_LEVEL", &c.Logging.Level},
		{"DATA_DIR", &c.Storage.DataDir},
		{"ATHENA_INSTALLS_ROOT", &c.Storage.InstallsRoot},
		{"ATHENA_PROFILES_ROOT", &c.Storage.ProfilesRoot},
		{"ATHENA_LOGS_ROOT", &c.Storage.LogsRoot},
	}

	for _, o := range overrides {
		if value := os.Getenv(o.key); value != "" {
			*o.target = value
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Steam.Username) == "" {
		return fmt.Errorf("STEAM_USERNAME must be set")
	}
	if c.Steam.Password == "" {
		return fmt.Errorf("STEAM_PASSWORD must be set")
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set when auth is enabled")
		}
		if len(c.Auth.JWTSecret) > 1 && c.Auth.JWTSecret[0] == '$' && c.Auth.JWTSecret[1] == '{' {
			return fmt.Errorf("JWT_SECRET contains unexpanded environment variable")
		}
	}

	roots := []struct{ name, path string }{
		{"installs_root", c.Storage.InstallsRoot},
		{"profiles_root", c.Storage.ProfilesRoot},
		{"logs_root", c.Storage.LogsRoot},
	}
	seen := make(map[string]string, len(roots))
	for _, root := range roots {
		if strings.TrimSpace(root.path) == "" {
			return fmt.Errorf("storage.%s must be set", root.name)
		}
		clean := filepath.Clean(root.path)
		if other, ok := seen[clean]; ok {
			return fmt.Errorf("storage.%s and storage.%s must differ", other, root.name)
		}
		seen[clean] = root.name
	}

	if strings.TrimSpace(c.Game.Executable) == "" {
		return fmt.Errorf("game.executable must be set")
	}

	if c.Steam.UpdateSchedule != "" {
		if _, err := ParseSchedule(c.Steam.UpdateSchedule); err != nil {
			return fmt.Errorf("invalid steam.update_schedule: %w", err)
		}
	}

	return nil
}

// ParseSchedule parses a cron expression with optional seconds and
// descriptors such as @daily.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(expr)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func resolveConfigPath() string {
	candidates := []string{"./configs/config.yaml", "/etc/athena/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
