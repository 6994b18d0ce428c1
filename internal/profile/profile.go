package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where speechcare stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your speechcare instance.
	InstanceURL string

	// Timezone is the IANA zone calendar statistics are counted in.
	Timezone string // SPEECHCARE_TIMEZONE (default: UTC)

	// Logging
	LogLevel string // SPEECHCARE_LOG_LEVEL (default: info)
	LogFile  string // SPEECHCARE_LOG_FILE (default: "", stderr only)

	// Speech synthesis
	TTSProvider        string  // SPEECHCARE_TTS_PROVIDER (default: elevenlabs)
	TTSBaseURL         string  // SPEECHCARE_TTS_BASE_URL (default depends on provider)
	TTSCredentialEnv   string  // SPEECHCARE_TTS_CREDENTIAL_ENV (default: ELEVENLABS_API_KEY)
	TTSVoiceID         string  // SPEECHCARE_TTS_VOICE_ID
	TTSModelID         string  // SPEECHCARE_TTS_MODEL_ID
	TTSOutputFormat    string  // SPEECHCARE_TTS_OUTPUT_FORMAT (default: mp3_44100_128)
	TTSStability       float64 // SPEECHCARE_TTS_STABILITY (default: 0.5)
	TTSSimilarityBoost float64 // SPEECHCARE_TTS_SIMILARITY_BOOST (default: 0.75)
	TTSStyle           float64 // SPEECHCARE_TTS_STYLE (default: 0)
	TTSSpeakerBoost    bool    // SPEECHCARE_TTS_SPEAKER_BOOST (default: true)
	TTSCostPerKChar    float64 // SPEECHCARE_TTS_COST_PER_1K_CHARS (default: 0.30)
	TTSRateLimit       float64 // SPEECHCARE_TTS_RATE_LIMIT requests per second per client (default: 2)
	TTSRateBurst       int     // SPEECHCARE_TTS_RATE_BURST (default: 10)

	// Object storage
	StorageDriver     string // SPEECHCARE_STORAGE_DRIVER local or supabase (default: local)
	StorageBucket     string // SPEECHCARE_STORAGE_BUCKET (default: audio-cache)
	StorageURL        string // SPEECHCARE_STORAGE_URL base url of the storage endpoint (legacy: SUPABASE_URL)
	StorageServiceKey string // SPEECHCARE_STORAGE_SERVICE_KEY (legacy: SUPABASE_SERVICE_ROLE_KEY)

	// Audio cache
	CacheMaxItems int           // SPEECHCARE_CACHE_MAX_ITEMS (default: 256)
	CacheTTL      time.Duration // SPEECHCARE_CACHE_TTL (default: 1h)
	RedisAddr     string        // SPEECHCARE_REDIS_ADDR (default: "", L2 disabled)
	RedisPassword string        // SPEECHCARE_REDIS_PASSWORD
	RedisDB       int           // SPEECHCARE_REDIS_DB

	// JWTSecret enables bearer token auth on the API when set.
	JWTSecret string // SPEECHCARE_JWT_SECRET
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsRedisEnabled reports whether the L2 audio cache is configured.
func (p *Profile) IsRedisEnabled() bool {
	return p.RedisAddr != ""
}

// IsAuthEnabled reports whether API requests must carry a bearer token.
func (p *Profile) IsAuthEnabled() bool {
	return p.JWTSecret != ""
}

// Credential returns the provider credential source configured for this profile.
func (p *Profile) Credential() CredentialFunc {
	return EnvCredential(p.CredentialEnvKeys()...)
}

// CredentialEnvKeys lists the environment keys checked for the provider credential, in order.
func (p *Profile) CredentialEnvKeys() []string {
	keys := []string{}
	if p.TTSCredentialEnv != "" {
		keys = append(keys, p.TTSCredentialEnv)
	}
	for _, k := range defaultCredentialEnv[p.TTSProvider] {
		if k != p.TTSCredentialEnv {
			keys = append(keys, k)
		}
	}
	return keys
}

var defaultCredentialEnv = map[string][]string{
	"elevenlabs": {"ELEVENLABS_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
}

var defaultVoice = map[string]string{
	"elevenlabs": "21m00Tcm4TlvDq8ikWAM",
	"openai":     "alloy",
	"edge":       "pt-BR-FranciscaNeural",
}

var defaultModel = map[string]string{
	"elevenlabs": "eleven_multilingual_v2",
	"openai":     "tts-1",
}

var defaultBaseURL = map[string]string{
	"elevenlabs": "https://api.elevenlabs.io/v1",
	"openai":     "https://api.openai.com/v1",
}

// FromEnv loads configuration from environment variables.
// Storage settings fall back to the SUPABASE_* keys used by the hosted backend.
func (p *Profile) FromEnv() {
	// Skips empty values to allow defaults to take effect
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		if legacyKey == "" {
			return ""
		}
		return os.Getenv(legacyKey)
	}

	getEnvWithDefault := func(key, defaultValue string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultValue
	}

	getFloatEnv := func(key string, defaultValue float64) float64 {
		if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
			return f
		}
		return defaultValue
	}

	getIntEnv := func(key string, defaultValue int) int {
		if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
			return n
		}
		return defaultValue
	}

	p.Timezone = getEnvWithDefault("SPEECHCARE_TIMEZONE", "UTC")
	p.LogLevel = getEnvWithDefault("SPEECHCARE_LOG_LEVEL", "info")
	p.LogFile = os.Getenv("SPEECHCARE_LOG_FILE")

	p.TTSProvider = getEnvWithDefault("SPEECHCARE_TTS_PROVIDER", "elevenlabs")
	p.TTSBaseURL = getEnvWithDefault("SPEECHCARE_TTS_BASE_URL", defaultBaseURL[p.TTSProvider])
	p.TTSCredentialEnv = os.Getenv("SPEECHCARE_TTS_CREDENTIAL_ENV")
	p.TTSVoiceID = getEnvWithDefault("SPEECHCARE_TTS_VOICE_ID", defaultVoice[p.TTSProvider])
	p.TTSModelID = getEnvWithDefault("SPEECHCARE_TTS_MODEL_ID", defaultModel[p.TTSProvider])
	p.TTSOutputFormat = getEnvWithDefault("SPEECHCARE_TTS_OUTPUT_FORMAT", "mp3_44100_128")
	p.TTSStability = getFloatEnv("SPEECHCARE_TTS_STABILITY", 0.5)
	p.TTSSimilarityBoost = getFloatEnv("SPEECHCARE_TTS_SIMILARITY_BOOST", 0.75)
	p.TTSStyle = getFloatEnv("SPEECHCARE_TTS_STYLE", 0)
	p.TTSSpeakerBoost = getEnvWithDefault("SPEECHCARE_TTS_SPEAKER_BOOST", "true") == "true"
	p.TTSCostPerKChar = getFloatEnv("SPEECHCARE_TTS_COST_PER_1K_CHARS", 0.30)
	p.TTSRateLimit = getFloatEnv("SPEECHCARE_TTS_RATE_LIMIT", 2)
	p.TTSRateBurst = getIntEnv("SPEECHCARE_TTS_RATE_BURST", 10)

	p.StorageDriver = getEnvWithDefault("SPEECHCARE_STORAGE_DRIVER", "local")
	p.StorageBucket = getEnvWithDefault("SPEECHCARE_STORAGE_BUCKET", "audio-cache")
	p.StorageURL = getEnvWithFallback("SPEECHCARE_STORAGE_URL", "SUPABASE_URL")
	p.StorageServiceKey = getEnvWithFallback("SPEECHCARE_STORAGE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY")

	p.CacheMaxItems = getIntEnv("SPEECHCARE_CACHE_MAX_ITEMS", 256)
	p.CacheTTL = time.Hour
	if d, err := time.ParseDuration(os.Getenv("SPEECHCARE_CACHE_TTL")); err == nil {
		p.CacheTTL = d
	}
	p.RedisAddr = os.Getenv("SPEECHCARE_REDIS_ADDR")
	p.RedisPassword = os.Getenv("SPEECHCARE_REDIS_PASSWORD")
	p.RedisDB = getIntEnv("SPEECHCARE_REDIS_DB", 0)

	p.JWTSecret = os.Getenv("SPEECHCARE_JWT_SECRET")
}

// ApplyDefaults fills zero-valued synthesis and cache settings with the provider defaults.
func (p *Profile) ApplyDefaults() {
	if p.TTSProvider == "" {
		p.TTSProvider = "elevenlabs"
	}
	if p.TTSBaseURL == "" {
		p.TTSBaseURL = defaultBaseURL[p.TTSProvider]
	}
	if p.TTSVoiceID == "" {
		p.TTSVoiceID = defaultVoice[p.TTSProvider]
	}
	if p.TTSModelID == "" {
		p.TTSModelID = defaultModel[p.TTSProvider]
	}
	if p.TTSOutputFormat == "" {
		p.TTSOutputFormat = "mp3_44100_128"
	}
	if p.StorageDriver == "" {
		p.StorageDriver = "local"
	}
	if p.StorageBucket == "" {
		p.StorageBucket = "audio-cache"
	}
	if p.CacheMaxItems <= 0 {
		p.CacheMaxItems = 256
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = time.Hour
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "speechcare")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/speechcare"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("speechcare_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	p.ApplyDefaults()
	if p.Timezone != "" && p.Timezone != "UTC" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return errors.Wrapf(err, "invalid timezone %q", p.Timezone)
		}
	}
	switch p.TTSProvider {
	case "elevenlabs", "openai", "edge":
	default:
		return errors.Errorf("unsupported tts provider %q", p.TTSProvider)
	}
	switch p.StorageDriver {
	case "local":
	case "supabase":
		if p.StorageURL == "" {
			return errors.New("storage url is required for the supabase storage driver")
		}
	default:
		return errors.Errorf("unsupported storage driver %q", p.StorageDriver)
	}

	return nil
}
