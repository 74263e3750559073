package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort   int    `mapstructure:"daemon_port"`
	DataDir      string `mapstructure:"data_dir"`
	DBPath       string `mapstructure:"db_path"`
	PhotoDBPath  string `mapstructure:"photo_db_path"`
	ReadingsPath string `mapstructure:"readings_path"`
	MaxAttempts  int    `mapstructure:"max_attempts"`

	Inbox        InboxConfig        `mapstructure:"inbox"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Upload       UploadConfig       `mapstructure:"upload"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	GDrive       FolderConfig       `mapstructure:"gdrive"`
	Dropbox      FolderConfig       `mapstructure:"dropbox"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Log          LogConfig          `mapstructure:"log"`
}

type InboxConfig struct {
	Dir        string        `mapstructure:"dir"`
	IgnoreList []string      `mapstructure:"ignore_list"`
	Debounce   time.Duration `mapstructure:"debounce"`
	BufferSize int           `mapstructure:"buffer_size"`
}

type ConnectivityConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	InitialOnline bool          `mapstructure:"initial_online"`
}

type UploadConfig struct {
	Backend string `mapstructure:"backend"` // minio, gdrive or dropbox
	Prefix  string `mapstructure:"prefix"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

type FolderConfig struct {
	Folder string `mapstructure:"folder"`
}

type BackendConfig struct {
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	ReadingsTable string        `mapstructure:"readings_table"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var Default = Config{
	DaemonPort:   9310,
	DBPath:       "fieldsync.db",
	PhotoDBPath:  "offline-photos.db",
	ReadingsPath: "offline-readings.json",
	MaxAttempts:  3,
	Inbox: InboxConfig{
		IgnoreList: []string{".DS_Store", "*.tmp", "*.part", "*.swp"},
		Debounce:   500 * time.Millisecond,
		BufferSize: 100,
	},
	Connectivity: ConnectivityConfig{
		Interval:      15 * time.Second,
		Timeout:       5 * time.Second,
		InitialOnline: true,
	},
	Upload: UploadConfig{
		Backend: "minio",
		Prefix:  "properties",
	},
	MinIO: MinIOConfig{
		Bucket: "property-photos",
		Region: "us-east-1",
	},
	GDrive:  FolderConfig{Folder: "fieldsync"},
	Dropbox: FolderConfig{Folder: "/fieldsync"},
	Backend: BackendConfig{
		ReadingsTable: "meter_readings",
		Timeout:       30 * time.Second,
	},
	Log: LogConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	},
}

// Dir returns ~/.fieldsync, creating it if needed. Token files and the
// default data directory live here.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".fieldsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.resolvePaths()
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("data_dir", configDir)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("photo_db_path", Default.PhotoDBPath)
	v.SetDefault("readings_path", Default.ReadingsPath)
	v.SetDefault("max_attempts", Default.MaxAttempts)

	v.SetDefault("inbox.dir", Default.Inbox.Dir)
	v.SetDefault("inbox.ignore_list", Default.Inbox.IgnoreList)
	v.SetDefault("inbox.debounce", Default.Inbox.Debounce)
	v.SetDefault("inbox.buffer_size", Default.Inbox.BufferSize)

	v.SetDefault("connectivity.probe_url", Default.Connectivity.ProbeURL)
	v.SetDefault("connectivity.interval", Default.Connectivity.Interval)
	v.SetDefault("connectivity.timeout", Default.Connectivity.Timeout)
	v.SetDefault("connectivity.initial_online", Default.Connectivity.InitialOnline)

	v.SetDefault("upload.backend", Default.Upload.Backend)
	v.SetDefault("upload.prefix", Default.Upload.Prefix)

	v.SetDefault("minio.endpoint", Default.MinIO.Endpoint)
	v.SetDefault("minio.access_key", Default.MinIO.AccessKey)
	v.SetDefault("minio.secret_key", Default.MinIO.SecretKey)
	v.SetDefault("minio.bucket", Default.MinIO.Bucket)
	v.SetDefault("minio.region", Default.MinIO.Region)
	v.SetDefault("minio.use_ssl", Default.MinIO.UseSSL)
	v.SetDefault("minio.public_url", Default.MinIO.PublicURL)

	v.SetDefault("gdrive.folder", Default.GDrive.Folder)
	v.SetDefault("dropbox.folder", Default.Dropbox.Folder)

	v.SetDefault("backend.url", Default.Backend.URL)
	v.SetDefault("backend.api_key", Default.Backend.APIKey)
	v.SetDefault("backend.readings_table", Default.Backend.ReadingsTable)
	v.SetDefault("backend.timeout", Default.Backend.Timeout)

	v.SetDefault("log.file", Default.Log.File)
	v.SetDefault("log.max_size_mb", Default.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", Default.Log.MaxBackups)
	v.SetDefault("log.max_age_days", Default.Log.MaxAgeDays)
}

// resolvePaths anchors relative storage paths at DataDir.
func (c *Config) resolvePaths() {
	for _, p := range []*string{&c.DBPath, &c.PhotoDBPath, &c.ReadingsPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
}
