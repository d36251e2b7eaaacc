package config

import "time"

// RebuildConfig holds the settings shared by the rebuild CLI and the
// job server: where the site generator lives and how it is invoked.
type RebuildConfig struct {
	SiteDir      string
	TenantEnvDir string
	OutputRoot   string
	BuildCommand string
	BuildTimeout time.Duration
	CaptureLines int
}

// LoadRebuildConfig constructs a RebuildConfig from environment variables.
func LoadRebuildConfig() RebuildConfig {
	return RebuildConfig{
		SiteDir:      GetString("SITE_DIR", "."),
		TenantEnvDir: GetString("TENANT_ENV_DIR", "./external-assets/env"),
		OutputRoot:   GetString("BUILD_OUTPUT_ROOT", "./dist"),
		BuildCommand: GetString("BUILD_COMMAND", "npm run build"),
		BuildTimeout: time.Duration(GetInt("BUILD_TIMEOUT_SECONDS", 1800)) * time.Second,
		CaptureLines: GetInt("BUILD_CAPTURE_LINES", 200),
	}
}

// JobServerConfig holds runtime configuration for the rebuild job server.
type JobServerConfig struct {
	Environment    string
	Addr           string
	Rebuild        RebuildConfig
	DefaultJournal string
	JobLogPath     string
	DeployCommand  string
	DeployTimeout  time.Duration
	Workers        int
	QueueSize      int
	AuthToken      string
	DatabaseURL    string
	MigrationsDir  string
}

// LoadJobServerConfig constructs a JobServerConfig from environment variables.
func LoadJobServerConfig() JobServerConfig {
	return JobServerConfig{
		Environment:    GetString("APP_ENV", "development"),
		Addr:           GetString("JOBSERVER_ADDR", ":4000"),
		Rebuild:        LoadRebuildConfig(),
		DefaultJournal: GetString("DEFAULT_JOURNAL", "epijinfo"),
		JobLogPath:     GetString("JOB_LOG_PATH", "./rebuild-jobs.log"),
		DeployCommand:  GetString("DEPLOY_COMMAND", ""),
		DeployTimeout:  time.Duration(GetInt("DEPLOY_TIMEOUT_SECONDS", 300)) * time.Second,
		Workers:        GetInt("REBUILD_WORKERS", 2),
		QueueSize:      GetInt("REBUILD_QUEUE_SIZE", 16),
		AuthToken:      GetString("REBUILD_AUTH_TOKEN", ""),
		DatabaseURL:    GetString("DATABASE_URL", ""),
		MigrationsDir:  GetString("DB_MIGRATIONS_DIR", "./migrations"),
	}
}
