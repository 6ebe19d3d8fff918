package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var Version = "dev"

var (
	Port    string
	EnvMode string

	TelegramToken string
	DiscordToken  string
	DeliveryMode  string // "telegram" or "discord"

	CobaltAPIKey     string
	CobaltSelfHosted string

	AlertWebhookURL string
	AlertPingUserID string
	AlertsEnabled   bool

	ActivityDBPath string

	ProxyHost       string
	ProxyPort       string
	ProxyUserPrefix string
	ProxyPassword   string
	ProxyCount      int
)

const (
	MaxConcurrentDownloads = 50
	MaxDownloadsPerUser    = 5

	FileSizeLimit  = 2 * 1024 * 1024 * 1024
	FileRetention  = 20 * time.Minute
	MinArtifactLen = 1024

	DirectLinkTimeout  = 12 * time.Second
	ShortLinkTimeout   = 5 * time.Second
	ProviderTimeout    = 90 * time.Second
	YtdlpTimeout       = 180 * time.Second
	DeliveryTimeout    = 120 * time.Second
	ShutdownDrain      = 10 * time.Second
	StatusEditInterval = 500 * time.Millisecond

	InstanceCacheTTL = time.Hour

	RateLimitWindow = 60 * time.Second
	RateLimitMax    = 60
	MaxURLLength    = 2048
)

// TaskRetention is how long a finished task stays visible to the status
// API before its registry entry is evicted.
var TaskRetention = 10 * time.Minute

var QualityHeight = map[string]int{
	"2160p": 2160,
	"1440p": 1440,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

var ContainerMIMEs = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
}

var AudioMIMEs = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"wav":  "audio/wav",
	"flac": "audio/flac",
}

var TempDir = "/var/tmp/zenload"

func DownloadsDir() string {
	return filepath.Join(TempDir, "downloads")
}

func ThumbsDir() string {
	return filepath.Join(TempDir, "thumbs")
}

// CobaltAPIs is the static fallback list, tried after the self-hosted
// instance. The provider layer merges public instances on top of this.
var CobaltAPIs = []string{
	"https://cobalt-backend.canine.tools",
	"https://cobalt-api.meowing.de",
	"https://capi.3kh0.net",
	"https://kityune.imput.net",
	"https://nachos.imput.net",
}

const CobaltInstancesAPI = "https://instances.cobalt.best/api/instances.json"

const TikWmAPI = "https://www.tikwm.com/api/"

// CobaltServices maps a cobalt-supported service name to the domains the
// universal strategy claims for it.
var CobaltServices = map[string][]string{
	"twitter":     {"twitter.com", "x.com", "t.co", "mobile.twitter.com", "mobile.x.com"},
	"reddit":      {"reddit.com", "redd.it", "old.reddit.com", "v.redd.it"},
	"snapchat":    {"snapchat.com", "story.snapchat.com", "t.snapchat.com"},
	"twitch":      {"twitch.tv", "clips.twitch.tv", "m.twitch.tv"},
	"vimeo":       {"vimeo.com", "player.vimeo.com"},
	"facebook":    {"facebook.com", "fb.watch", "fb.com", "m.facebook.com", "web.facebook.com"},
	"bilibili":    {"bilibili.com", "b23.tv", "m.bilibili.com", "bilibili.tv"},
	"dailymotion": {"dailymotion.com", "dai.ly"},
	"rutube":      {"rutube.ru", "m.rutube.ru"},
	"ok":          {"ok.ru", "odnoklassniki.ru", "m.ok.ru"},
	"vk":          {"vk.com", "vkvideo.ru", "m.vk.com", "vk.ru"},
	"tumblr":      {"tumblr.com"},
	"streamable":  {"streamable.com"},
	"loom":        {"loom.com"},
	"bluesky":     {"bsky.app", "bsky.social"},
	"xiaohongshu": {"xiaohongshu.com", "xhslink.com"},
}

func Load() {
	Port = envOrDefault("PORT", "3001")
	EnvMode = envOrDefault("ENV_MODE", "development")

	TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	DiscordToken = os.Getenv("DISCORD_TOKEN")
	DeliveryMode = envOrDefault("DELIVERY_MODE", "telegram")
	if DeliveryMode == "telegram" && TelegramToken == "" {
		log.Println("[WARN] TELEGRAM_TOKEN not set, telegram delivery disabled")
	}

	CobaltAPIKey = os.Getenv("COBALT_API_KEY")
	CobaltSelfHosted = os.Getenv("COBALT_SELF_HOSTED")

	AlertWebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	AlertPingUserID = os.Getenv("ALERT_PING_USER_ID")
	AlertsEnabled = AlertWebhookURL != ""

	ActivityDBPath = envOrDefault("ACTIVITY_DB_PATH", filepath.Join(TempDir, "activity.db"))

	ProxyHost = os.Getenv("PROXY_HOST")
	ProxyPort = envOrDefault("PROXY_PORT", "80")
	ProxyUserPrefix = os.Getenv("PROXY_USER_PREFIX")
	ProxyPassword = os.Getenv("PROXY_PASSWORD")
	ProxyCount, _ = strconv.Atoi(envOrDefault("PROXY_COUNT", "0"))

	if dir := os.Getenv("TEMP_DIR"); dir != "" {
		TempDir = dir
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
