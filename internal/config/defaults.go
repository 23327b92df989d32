package config

const (
	defaultInputDir               = "input"
	defaultOutputDir              = "output"
	defaultStateDir               = "~/.local/share/dreamloop"
	defaultImageMarker            = ".jpg"
	defaultFailureDelaySeconds    = 2
	defaultIdleIntervalMillis     = 250
	defaultJPEGQuality            = 95
	defaultTransformMode          = TransformModeCommand
	defaultTransformCommand       = "deepdream"
	defaultTransformTimeout       = 600
	defaultFramesFPS              = 1.0
	defaultFramesBind             = "127.0.0.1:5000"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultJournalRetentionDays   = 30
	defaultRefreshIntervalSeconds = 0
)

// Transform modes.
const (
	TransformModeCommand     = "command"
	TransformModePassthrough = "passthrough"
)

// Placeholders substituted into transform.args.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
		},
		Ingest: Ingest{
			ImageMarker:         defaultImageMarker,
			FailureDelaySeconds: defaultFailureDelaySeconds,
			IdleIntervalMillis:  defaultIdleIntervalMillis,
			JPEGQuality:         defaultJPEGQuality,
			Watch:               true,
		},
		Transform: Transform{
			Mode:           defaultTransformMode,
			Command:        defaultTransformCommand,
			Args:           []string{PlaceholderInput, PlaceholderOutput},
			TimeoutSeconds: defaultTransformTimeout,
		},
		Frames: Frames{
			RefreshIntervalSeconds: defaultRefreshIntervalSeconds,
			FPS:                    defaultFramesFPS,
			Bind:                   defaultFramesBind,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
