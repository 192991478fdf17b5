package logging

// Config is the "logging" section of rex.yml.
type Config struct {
	// Level is the minimum level: debug, info, warn or error. REX_LOG_LEVEL wins.
	Level string `yaml:"level"`

	// ReportCaller adds file, line and function to each entry. REX_LOG_CALLER=true enables it too.
	ReportCaller bool `yaml:"report_caller"`

	File FileSinkConfig `yaml:"file"`

	Format FormatConfig `yaml:"format"`
}

// FileSinkConfig selects the log file. Without an enabled path, a project
// with a .rex directory logs to .rex/logs/<component>-<date>.log.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset is "default" (timestamped text with fields), "simple" (level and
	// message only) or "json".
	Preset           string `yaml:"preset"`
	DisableTimestamp bool   `yaml:"disable_timestamp"`
	DisableComponent bool   `yaml:"disable_component"`
	// StructuredToStderr is "auto" (stderr when debugging or when stderr is
	// not a terminal), "always" or "never".
	StructuredToStderr string `yaml:"structured_to_stderr"`
}
