package config

import "time"

// GatewayConfig holds runtime configuration for the edge gateway.
type GatewayConfig struct {
	Environment string
	Addr        string

	// Tenant routing.
	RendererURL      string
	ProductionDomain string
	DefaultJournal   string
	JournalCodes     []string
	TenantEnvDir     string
	Languages        []string
	DefaultLanguage  string
	StrictTenants    bool

	// Revalidation.
	RevalidateToken      string
	RevalidateAllowedIPs []string
	CacheRedisAddr       string
	CacheRedisPassword   string
	CacheRedisDB         int

	// Proxies.
	PDFAllowedHosts    []string
	PDFRateLimit       int
	PDFRateWindow      time.Duration
	PDFTimeout         time.Duration
	APIBaseURL         string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadGatewayConfig constructs a GatewayConfig from environment variables.
func LoadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Environment:      GetString("APP_ENV", "development"),
		Addr:             GetString("GATEWAY_ADDR", ":8080"),
		RendererURL:      GetString("RENDERER_URL", "http://localhost:3000"),
		ProductionDomain: GetString("PRODUCTION_DOMAIN", "episciences.org"),
		DefaultJournal:   GetString("DEFAULT_JOURNAL", "epijinfo"),
		JournalCodes:     GetStringSlice("JOURNAL_CODES", nil),
		TenantEnvDir:     GetString("TENANT_ENV_DIR", "./external-assets/env"),
		Languages:        GetStringSlice("ACCEPTED_LANGUAGES", []string{"en", "fr"}),
		DefaultLanguage:  GetString("DEFAULT_LANGUAGE", "en"),
		StrictTenants:    GetBool("TENANT_STRICT", false),

		RevalidateToken:      GetString("REVALIDATE_TOKEN", ""),
		RevalidateAllowedIPs: GetStringSlice("REVALIDATE_ALLOWED_IPS", nil),
		CacheRedisAddr:       GetString("CACHE_REDIS_ADDR", ""),
		CacheRedisPassword:   GetString("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:         GetInt("CACHE_REDIS_DB", 0),

		PDFAllowedHosts:    GetStringSlice("PDF_PROXY_ALLOWED_HOSTS", []string{"episciences.org", "arxiv.org", "hal.science", "zenodo.org", "doi.org"}),
		PDFRateLimit:       GetInt("PDF_PROXY_RATE_LIMIT", 30),
		PDFRateWindow:      time.Duration(GetInt("PDF_PROXY_RATE_WINDOW_SECONDS", 60)) * time.Second,
		PDFTimeout:         time.Duration(GetInt("PDF_PROXY_TIMEOUT_SECONDS", 15)) * time.Second,
		APIBaseURL:         GetString("API_BASE_URL", "https://api.episciences.org/api"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
