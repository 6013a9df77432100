package config

const (
	defaultLogDir              = "~/.local/share/scribe/logs"
	defaultCacheDir            = "~/.local/share/scribe/cache"
	defaultCachePath           = "~/.local/share/scribe/cache/descriptions.db"
	defaultWorkers             = 1
	defaultRetryLimit          = 2
	defaultExtractCommand      = "ffmpeg"
	defaultExtractTimeout      = 300
	defaultConvertCommand      = "ffmpeg"
	defaultConvertFormat       = "png"
	defaultConvertTimeout      = 120
	defaultDescribeProvider    = "openai"
	defaultDescribeModel       = "gpt-4o-mini"
	defaultDescribePrompt      = "Describe this image in two sentences."
	defaultDescribeTimeout     = 120
	defaultLockGraceSeconds    = 120
	defaultMonitorPollInterval = 2
	defaultMonitorRecent       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

var (
	defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff", ".heic"}
	defaultVideoExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".m4v"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
		},
		Pipeline: Pipeline{
			Recursive:       true,
			ImageExtensions: append([]string{}, defaultImageExtensions...),
			VideoExtensions: append([]string{}, defaultVideoExtensions...),
			Workers:         defaultWorkers,
			RetryLimit:      defaultRetryLimit,
		},
		Extract: Extract{
			Command:        defaultExtractCommand,
			TimeoutSeconds: defaultExtractTimeout,
		},
		Convert: Convert{
			Command:        defaultConvertCommand,
			Format:         defaultConvertFormat,
			TimeoutSeconds: defaultConvertTimeout,
		},
		Describe: Describe{
			Provider:       defaultDescribeProvider,
			Model:          defaultDescribeModel,
			Prompt:         defaultDescribePrompt,
			TimeoutSeconds: defaultDescribeTimeout,
		},
		Cache: Cache{
			Enabled: true,
			Path:    defaultCachePath,
		},
		Store: Store{
			LockGraceSeconds: defaultLockGraceSeconds,
		},
		Monitor: Monitor{
			PollIntervalSeconds: defaultMonitorPollInterval,
			RecentResults:       defaultMonitorRecent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
