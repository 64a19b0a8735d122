// Package logger provides H-UDP's colored console logger, built on
// go.uber.org/zap so level filtering and output sinks come from a real
// logging library rather than a hand-rolled formatter.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

var (
	atomLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base      = buildLogger()
)

func buildLogger() *zap.SugaredLogger {
	cfg := zapcore.EncoderConfig{
		TimeKey:     "T",
		LevelKey:    "L",
		MessageKey:  "M",
		LineEnding:  zapcore.DefaultLineEnding,
		EncodeTime:  zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeLevel: coloredLevelEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), atomLevel)
	return zap.New(core).Sugar()
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, label := ColorWhite, "INFO"
	switch level {
	case zapcore.DebugLevel:
		color, label = ColorGray, "DEBUG"
	case zapcore.InfoLevel:
		color, label = ColorWhite, "INFO"
	case zapcore.WarnLevel:
		color, label = ColorYellow, "WARN"
	case zapcore.ErrorLevel:
		color, label = ColorRed, "ERROR"
	}
	enc.AppendString(fmt.Sprintf("%s[%s]%s", color, label, ColorReset))
}

// SetLevel sets the minimum level emitted.
func SetLevel(level zapcore.Level) {
	atomLevel.SetLevel(level)
}

func Debug(format string, args ...interface{}) { base.Debugf(format, args...) }
func Info(format string, args ...interface{})  { base.Infof(format, args...) }
func Warn(format string, args ...interface{})  { base.Warnf(format, args...) }
func Error(format string, args ...interface{}) { base.Errorf(format, args...) }

// Success logs at info level with a green highlight. zap has no dedicated
// success level, so the color rides in the formatted message itself.
func Success(format string, args ...interface{}) {
	base.Infof("%s%s%s", ColorGreen, fmt.Sprintf(format, args...), ColorReset)
}

// InfoCyan logs at info level highlighted in cyan, for peer lifecycle
// events (connect/disconnect).
func InfoCyan(format string, args ...interface{}) {
	base.Infof("%s%s%s", ColorCyan, fmt.Sprintf(format, args...), ColorReset)
}

// Fatal logs at error level and exits the process.
func Fatal(format string, args ...interface{}) {
	base.Errorf(format, args...)
	os.Exit(1)
}

// Section prints a section header directly to stdout; this is decorative
// terminal output, not a structured log line, so it bypasses zap.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application startup banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██╗  ██╗      ██╗   ██╗██████╗ ██████╗                ║
║   ██║  ██║      ██║   ██║██╔══██╗██╔══██╗               ║
║   ███████║█████╗██║   ██║██║  ██║██████╔╝               ║
║   ██╔══██║╚════╝██║   ██║██║  ██║██╔═══╝                ║
║   ██║  ██║      ╚██████╔╝██████╔╝██║                    ║
║   ╚═╝  ╚═╝       ╚═════╝ ╚═════╝ ╚═╝                    ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = base.Sync()
}
