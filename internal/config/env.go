package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".agentforge/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"agentforge/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// Postgres settings (used when Type == "postgres")
	PostgresURL     string `envconfig:"POSTGRES_URL"`
	PostgresMigrate bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

type SchedulerEnv struct {
	MaxConcurrentTasks int           `envconfig:"MAX_CONCURRENT_TASKS" default:"1"`
	ExecutionTimeout   time.Duration `envconfig:"EXECUTION_TIMEOUT" default:"30m"`
	CIPollInterval     time.Duration `envconfig:"CI_POLL_INTERVAL" default:"10s"`
	CIMaxAttempts      int           `envconfig:"CI_MAX_ATTEMPTS" default:"20"`
	HeartbeatInterval  time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	MaxMissedPongs     int           `envconfig:"MAX_MISSED_PONGS" default:"2"`
}

type LLMEnv struct {
	PrimaryAPIKey    string `envconfig:"LLM_PRIMARY_API_KEY"`
	PrimaryBaseURL   string `envconfig:"LLM_PRIMARY_BASE_URL"`
	PrimaryModel     string `envconfig:"LLM_PRIMARY_MODEL" default:"gpt-4o"`
	SecondaryAPIKey  string `envconfig:"LLM_SECONDARY_API_KEY"`
	SecondaryBaseURL string `envconfig:"LLM_SECONDARY_BASE_URL"`
	SecondaryModel   string `envconfig:"LLM_SECONDARY_MODEL"`
	MaxTokens        int    `envconfig:"LLM_MAX_TOKENS" default:"4096"`
}

type GitHubEnv struct {
	Token      string `envconfig:"GITHUB_TOKEN"`
	Owner      string `envconfig:"GITHUB_OWNER"`
	Repo       string `envconfig:"GITHUB_REPO"`
	BaseBranch string `envconfig:"GITHUB_BASE_BRANCH"` // empty: repository default
	APIURL     string `envconfig:"GITHUB_API_URL"`     // GitHub Enterprise
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	SchedulerEnv
	LLMEnv
	GitHubEnv
	VAPIDEnv
}

const namespace = "AGENTFORGE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func (e *BaseEnv) IsLocal() bool {
	return e.Env == "local"
}

func (e *VAPIDEnv) Enabled() bool {
	return e.PublicKey != "" && e.PrivateKey != ""
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func SchedulerEnvFromEnv(env *Env) *SchedulerEnv {
	return &env.SchedulerEnv
}

func LLMEnvFromEnv(env *Env) *LLMEnv {
	return &env.LLMEnv
}

func GitHubEnvFromEnv(env *Env) *GitHubEnv {
	return &env.GitHubEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
