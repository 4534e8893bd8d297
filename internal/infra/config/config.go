package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv     string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	Telegram struct {
		Token     string  `envconfig:"TG_BOT_TOKEN"`
		ChannelID string  `envconfig:"TG_CHANNEL_ID"`
		OwnerIDs  []int64 `envconfig:"TG_OWNER_IDS"`
	} `envconfig:""`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	Gemini struct {
		APIKey string   `envconfig:"GEMINI_API_KEY"`
		Models []string `envconfig:"GEMINI_MODELS" default:"gemini-1.5-flash,gemini-1.5-flash-8b,gemini-pro"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Models  []string      `envconfig:"OPENAI_MODELS" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Generator struct {
		QuotaRetries int           `envconfig:"GEN_QUOTA_RETRIES" default:"0"`
		QuotaBackoff time.Duration `envconfig:"GEN_QUOTA_BACKOFF" default:"5s"`
		Timeout      time.Duration `envconfig:"GEN_TIMEOUT" default:"45s"`
	} `envconfig:""`

	HuggingFace struct {
		Token      string `envconfig:"HF_TOKEN"`
		ImageModel string `envconfig:"HF_IMAGE_MODEL" default:"stabilityai/stable-diffusion-xl-base-1.0"`
	} `envconfig:""`

	Hosting struct {
		CatboxUserHash string `envconfig:"CATBOX_USERHASH"`
		TelegraphToken string `envconfig:"TELEGRAPH_TOKEN"`
		ArticleAuthor  string `envconfig:"ARTICLE_AUTHOR" default:"Anime News"`
	} `envconfig:""`

	Thumbnail struct {
		AssetsDir string `envconfig:"ASSETS_DIR" default:"assets"`
		Watermark string `envconfig:"WATERMARK" default:"Anime News"`
		MaxBytes  int    `envconfig:"THUMBNAIL_MAX_BYTES" default:"2000000"`
	} `envconfig:""`

	Pipeline struct {
		FeedsFile           string        `envconfig:"FEEDS_FILE"`
		PollInterval        time.Duration `envconfig:"POLL_INTERVAL" default:"5m"`
		FeedItemsLimit      int           `envconfig:"FEED_ITEMS_LIMIT" default:"3"`
		PostDelay           time.Duration `envconfig:"POST_DELAY" default:"10s"`
		RecordOnSendFailure bool          `envconfig:"RECORD_ON_SEND_FAILURE" default:"true"`
		PublishSummaryPages bool          `envconfig:"PUBLISH_SUMMARY_PAGES" default:"false"`
		ClaimTTL            time.Duration `envconfig:"CLAIM_TTL" default:"10m"`
		ScrapeTimeout       time.Duration `envconfig:"SCRAPE_TIMEOUT" default:"15s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает окружение и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// IsOwner проверяет, входит ли пользователь в список операторов.
func (c AppConfig) IsOwner(userID int64) bool {
	for _, id := range c.Telegram.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}
