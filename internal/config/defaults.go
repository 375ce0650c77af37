package config

const (
	defaultConfigPath         = "~/.config/audioconv/config.toml"
	defaultStateDir           = "~/.local/share/audioconv"
	defaultLogDir             = "~/.local/share/audioconv/logs"
	defaultTaskTimeoutSeconds = 300
	defaultGCEvery            = 5
	defaultSuccessPolicy      = PolicyAny
	defaultMP3Bitrate         = "192k"
	defaultMP3Quality         = "2"
	defaultMonitorInterval    = 2.0
	defaultCPUCritical        = 85
	defaultMemoryCritical     = 80
	defaultDiskCritical       = 90
	defaultWarningMargin      = 10
	defaultDiskPath           = "/"
	defaultHistoryWindow      = 1024
	defaultClamdAddress       = "tcp://localhost:3310"
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
	defaultServerBind         = "127.0.0.1:7390"
)

// Success policies for the aggregate batch outcome.
const (
	PolicyAny      = "any"
	PolicyMajority = "majority"
	PolicyAll      = "all"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Conversion: Conversion{
			TaskTimeoutSeconds: defaultTaskTimeoutSeconds,
			GCEvery:            defaultGCEvery,
			SuccessPolicy:      defaultSuccessPolicy,
			HideWindow:         true,
		},
		FFmpeg: FFmpeg{
			MP3Bitrate: defaultMP3Bitrate,
			MP3Quality: defaultMP3Quality,
		},
		Monitor: Monitor{
			IntervalSeconds: defaultMonitorInterval,
			CPUCritical:     defaultCPUCritical,
			MemoryCritical:  defaultMemoryCritical,
			DiskCritical:    defaultDiskCritical,
			WarningMargin:   defaultWarningMargin,
			DiskPath:        defaultDiskPath,
			HistoryWindow:   defaultHistoryWindow,
		},
		Security: Security{
			ClamdAddress: defaultClamdAddress,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
	}
}
