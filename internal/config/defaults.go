package config

const (
	defaultConfigPath         = "~/.config/omrbook/config.toml"
	defaultBaseDir            = "~/omr"
	defaultLogDir             = "~/.local/share/omrbook/logs"
	defaultHistoryDB          = "~/.local/share/omrbook/history.db"
	defaultLogRetentionDays   = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultStepTimeoutSeconds = 120
	defaultTargetStep         = "PAGE"
	defaultBinarization       = BinarizationAdaptive
	defaultGlobalThreshold    = 140
	defaultAdaptiveMeanCoeff  = 0.7
	defaultAdaptiveStdCoeff   = 0.9
	defaultAdaptiveWindow     = 9
	defaultGaussianRadius     = 1
	defaultMedianRadius       = 1
	defaultMaxCachedSources   = 64
	defaultRetainedSources    = 2
)

// Binarization filter kinds.
const (
	BinarizationGlobal   = "global"
	BinarizationAdaptive = "adaptive"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir:   defaultBaseDir,
			LogDir:    defaultLogDirectory(),
			HistoryDB: defaultHistoryDB,
		},
		Processing: Processing{
			StepTimeoutSeconds: defaultStepTimeoutSeconds,
			ParallelStubs:      true,
			TargetStep:         defaultTargetStep,
		},
		Picture: Picture{
			Binarization:      defaultBinarization,
			GlobalThreshold:   defaultGlobalThreshold,
			AdaptiveMeanCoeff: defaultAdaptiveMeanCoeff,
			AdaptiveStdCoeff:  defaultAdaptiveStdCoeff,
			AdaptiveWindow:    defaultAdaptiveWindow,
			GaussianRadius:    defaultGaussianRadius,
			MedianRadius:      defaultMedianRadius,
			MaxCachedSources:  defaultMaxCachedSources,
			RetainedSources:   defaultRetainedSources,
		},
		Book: Book{
			BackupOnSave:        true,
			SeparateBookFolders: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
