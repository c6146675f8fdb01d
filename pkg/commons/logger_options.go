package commons

type loggerOptions struct {
	name  string
	path  string
	level string
}

// Option customizes NewApplicationLogger.
type Option func(*loggerOptions)

func defaultLoggerOptions() *loggerOptions {
	return &loggerOptions{
		name:  "application",
		level: "info",
	}
}

// Name sets the logger name shown on every line.
func Name(name string) Option {
	return func(o *loggerOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Path enables the rotating file sink under the given directory.
func Path(path string) Option {
	return func(o *loggerOptions) {
		o.path = path
	}
}

// Level sets the minimum level, parsed the zap way ("debug", "info", ...).
// Unknown values fall back to info.
func Level(level string) Option {
	return func(o *loggerOptions) {
		if level != "" {
			o.level = level
		}
	}
}
