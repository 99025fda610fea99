package logger

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/types"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger zerolog.Logger

// Info writes record into os.stdout with log level INFO
func Info(v ...interface{}) {
	if len(v) == 1 {
		logger.Info().Interface("message", v[0]).Send()
	} else {
		logger.Info().Msg(fmt.Sprint(v...))
	}
}

// Infof writes record into os.stdout with log level INFO
func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

// Debug writes record into os.stdout with log level DEBUG
func Debug(v ...interface{}) {
	logger.Debug().Msg(fmt.Sprint(v...))
}

// Debugf writes record into os.stdout with log level DEBUG
func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

// Error writes record into os.stdout with log level ERROR
func Error(v ...interface{}) {
	logger.Error().Msg(fmt.Sprint(v...))
}

// Errorf writes record into os.stdout with log level ERROR
func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

// Fatal writes record into os.stdout with log level ERROR and exits
func Fatal(v ...interface{}) {
	logger.Error().Msg(fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf writes record into os.stdout with log level ERROR and exits
func Fatalf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
	os.Exit(1)
}

// Warn writes record into os.stdout with log level WARN
func Warn(v ...interface{}) {
	logger.Warn().Msg(fmt.Sprint(v...))
}

// Warnf writes record into os.stdout with log level WARN
func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

func LogSpec(spec map[string]interface{}) {
	message := types.Message{}
	message.Spec = spec
	message.Type = types.SpecMessage

	Info(message)
}

func LogConnectionStatus(err error) {
	message := types.Message{}
	message.Type = types.ConnectionStatusMessage
	message.ConnectionStatus = &types.StatusRow{}
	if err != nil {
		message.ConnectionStatus.Message = err.Error()
		message.ConnectionStatus.Status = types.ConnectionFailed
	} else {
		message.ConnectionStatus.Status = types.ConnectionSucceed
	}
	Info(message)
}

// LogCheckpoint emits the checkpoint and mirrors it into the config folder
func LogCheckpoint(checkpoint types.Checkpoint) {
	message := types.Message{}
	message.Type = types.CheckpointMessage
	message.Checkpoint = &checkpoint
	Debug(message)

	if configFolder := viper.GetString(constants.ConfigFolder); configFolder != "" {
		err := FileLogger(checkpoint, filepath.Join(configFolder, "checkpoints"), url.PathEscape(checkpoint.StreamID), ".json")
		if err != nil {
			Warnf("failed to mirror checkpoint of stream[%s]: %s", checkpoint.StreamID, err)
		}
	}
}

// FileLogger creates a new file or overwrites an existing one with the specified filename, path, extension
func FileLogger(content any, filePath string, fileName, fileExtension string) error {
	contentBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %s", err)
	}

	if err := os.MkdirAll(filePath, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory: %s", err)
	}
	fullPath := filepath.Join(filePath, fileName+fileExtension)

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create or open file: %s", err)
	}
	defer file.Close()

	_, err = file.Write(contentBytes)
	if err != nil {
		return fmt.Errorf("failed to write data to file: %s", err)
	}

	return nil
}

func Init() {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var currentLevel string
	// logColors defines ANSI color codes for log levels
	var logColors = map[string]string{
		"debug": "\033[36m", // Cyan
		"info":  "\033[32m", // Green
		"warn":  "\033[33m", // Yellow
		"error": "\033[31m", // Red
		"fatal": "\033[31m", // Red
	}
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i interface{}) string {
			level, _ := i.(string)
			currentLevel = level
			return fmt.Sprintf("%s%s\033[0m", logColors[level], strings.ToUpper(level))
		},
		FormatMessage: func(i interface{}) string {
			msg := ""
			switch v := i.(type) {
			case string:
				msg = v
			case nil:
				return ""
			default:
				jsonMsg, err := json.Marshal(v)
				if err != nil {
					return err.Error()
				}
				return string(jsonMsg)
			}
			if currentLevel == zerolog.ErrorLevel.String() || currentLevel == zerolog.FatalLevel.String() {
				msg = fmt.Sprintf("\033[31m%s\033[0m", msg)
			}
			return msg
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("\033[90m%s\033[0m", i)
		},
	}

	writers := []io.Writer{console}
	if configFolder := viper.GetString(constants.ConfigFolder); configFolder != "" {
		now := time.Now()
		rotatingFile := &lumberjack.Logger{
			Filename:   filepath.Join(configFolder, "logs", fmt.Sprintf("sync_%s", now.Format("2006-1-2_15-4-5")), "pipes.log"),
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		writers = append(writers, rotatingFile)
	}

	multiwriter := zerolog.MultiLevelWriter(writers...)
	logger = zerolog.New(multiwriter).Level(level).With().Timestamp().Str("ns", "pipes").Logger()
}
