package server

import "time"

// RuntimeConfig holds the runtime settings for the signing service process.
type RuntimeConfig struct {
	HTTPAddr string `env:"INKFLOW_HTTP_ADDR" envDefault:":8080"`
	DBPath   string `env:"INKFLOW_DB_PATH"   envDefault:"inkflow.db"`
	// BaseURL prefixes signer access links embedded in notifications.
	BaseURL string `env:"INKFLOW_BASE_URL" envDefault:"http://localhost:8080"`

	// GrantSecret signs dashboard subscribe grants. The management API is
	// unusable until it is set.
	GrantSecret   string `env:"INKFLOW_GRANT_SECRET"`
	GrantIssuer   string `env:"INKFLOW_GRANT_ISSUER"   envDefault:"inkflow"`
	GrantAudience string `env:"INKFLOW_GRANT_AUDIENCE" envDefault:"inkflow-dashboard"`

	ExpirySweepInterval   time.Duration `env:"INKFLOW_EXPIRY_SWEEP_INTERVAL"   envDefault:"1m"`
	ReminderAfter         time.Duration `env:"INKFLOW_REMINDER_AFTER"          envDefault:"72h"`
	ReminderSweepInterval time.Duration `env:"INKFLOW_REMINDER_SWEEP_INTERVAL" envDefault:"1h"`
	DispatchInterval      time.Duration `env:"INKFLOW_DISPATCH_INTERVAL"       envDefault:"5s"`

	ReadHeaderTimeout time.Duration `env:"INKFLOW_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"INKFLOW_SHUTDOWN_TIMEOUT"    envDefault:"5s"`
}
