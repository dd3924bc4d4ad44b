package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderUserAgent     = "User-Agent"
	HeaderReferer       = "Referer"
	ContentTypeJSON     = "application/json"
	ContentTypeSSE      = "text/event-stream"
	AuthSchemeBearer    = "Bearer"
	QueryParamToken     = "token"
)

// API paths
const (
	PathHealthz      = "/healthz"
	PathMetrics      = "/metrics"
	PathImport       = "/api/recipes/import"
	PathRecipe       = "/api/recipes/{id}"
	PathRecipeStream = "/api/recipes/{id}/stream"
)

// Outbound fetch defaults
const (
	DefaultUserAgent        = "Mozilla/5.0 (compatible; CookedBot/1.0)"
	BrowserUserAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	ShortVideoReferer       = "https://www.tiktok.com/"
	DefaultShortVideoAPIURL = "https://www.tikwm.com/api/"
	DefaultYtDlpPath        = "yt-dlp"
)

// Placeholders used when metadata cannot be resolved.
const (
	UntitledPlaceholder       = "Untitled"
	UntitledRecipePlaceholder = "Untitled Recipe"
	UnknownHostPlaceholder    = "unknown"
)

// Stream event names
const (
	EventTest     = "test"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Pipeline stage identifiers reported in progress events.
const (
	StageFetchingInfo       = "fetching_info"
	StageDownloadingImage   = "downloading_image"
	StageTranscribing       = "transcribing"
	StageExtractingCaptions = "extracting_captions"
	StageScrapingPage       = "scraping_page"
	StageExtractingRecipe   = "extracting_recipe"
	StageSaving             = "saving"
)

// Blob storage
const (
	RecipeImagesBucket = "recipe-images"
	DefaultImageExt    = "jpg"
)

// Limits
const (
	WebsiteTextLimit    = 5000
	MaxRecipeComments   = 5
	StreamBufferSize    = 256
	ErrorSnippetLimit   = 400
	DefaultMaxBodySize  = 64 * 1024 * 1024
	SQLiteBusyTimeoutMS = 5000
)

// User-visible failure reasons
const (
	ReasonInternalExtraction = "Internal extraction error"
	ReasonExtractionFailed   = "Extraction failed"
	ReasonRecipeNotFound     = "Recipe not found"
	ReasonExtractionExpired  = "Extraction expired, please re-import"
	ReasonInternal           = "Internal error"
	ReasonSaveFailed         = "Failed to save extracted data"
)
