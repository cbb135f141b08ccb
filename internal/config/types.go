package config

// Config is the daemon's full configuration.
//
// Files may be JSON or YAML; YAML is coerced to JSON and both are decoded
// strictly (unknown fields are rejected).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Jobs      JobsConfig      `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the task loop.
//
// All durations are Go duration strings (e.g. "100ms", "10s").
type SchedulerConfig struct {
	// Pause between task invocations. Default "100ms".
	Pause string `json:"pause,omitempty"`

	// IdlePause after a pass that invoked nothing. Default: same as pause.
	IdlePause string `json:"idle_pause,omitempty"`

	// HaltOnError lets a failing job halt the whole loop (the core's raw
	// behavior). By default job errors are logged and recorded but swallowed,
	// so one bad job does not stop the daemon.
	HaltOnError bool `json:"halt_on_error,omitempty"`
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./chored.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// JobsConfig holds the built-in maintenance jobs. Each job registers a task
// with the scheduler under a stable name ("logreport", "prune", "form:<name>").
type JobsConfig struct {
	WarningReport *WarningReportConfig `json:"warning_report,omitempty"`
	Prune         *PruneConfig         `json:"prune,omitempty"`
	Forms         []FormConfig         `json:"forms,omitempty"`
}

// WarningReportConfig configures the build-log warning report job.
type WarningReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // minimum interval, see ParseSchedule
	Input    string `json:"input"`
	Output   string `json:"output"`

	// IgnoreCodes overrides the built-in warning-code exception list.
	IgnoreCodes []string `json:"ignore_codes,omitempty"`
}

// PruneConfig configures the recursive output-directory pruning job.
type PruneConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Root     string `json:"root"`

	// Keep lists file extensions to preserve (default ".efi", ".pdb").
	Keep []string `json:"keep,omitempty"`
}

// FormConfig configures one CSV form-generation job.
type FormConfig struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`

	Ticker   string `json:"ticker"`
	Template string `json:"template"` // JSON field template
	Input    string `json:"input"`    // share lots CSV
	Output   string `json:"output"`
	Prices   string `json:"prices"` // OHLC history CSV

	Rates RatesConfig `json:"rates"`
}

// RatesConfig tells the forms job where USD->INR reference rates come from:
// either a local CSV file or an HTTP endpoint serving the same CSV shape.
type RatesConfig struct {
	File       string `json:"file,omitempty"`
	URL        string `json:"url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // HTTP fetch limiter, default 1
}
