package ports

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Interactor is how the tracker reports to whoever drives it
type Interactor interface {
	Output(message string)
	Warning(message string)
	Error(message string, err error)
	StartSpinner(message string)
	StopSpinner(success bool, message string)
}

// LogInteractor writes every interaction to a zerolog logger. Spinners become
// a start line and a completion line carrying the elapsed time.
type LogInteractor struct {
	logger zerolog.Logger

	mu      sync.Mutex
	started time.Time
	task    string
}

// NewLogInteractor creates a LogInteractor
func NewLogInteractor(logger zerolog.Logger) *LogInteractor {
	return &LogInteractor{logger: logger}
}

func (li *LogInteractor) Output(message string) {
	li.logger.Info().Msg(message)
}

func (li *LogInteractor) Warning(message string) {
	li.logger.Warn().Msg(message)
}

func (li *LogInteractor) Error(message string, err error) {
	li.logger.Error().Err(err).Msg(message)
}

func (li *LogInteractor) StartSpinner(message string) {
	li.mu.Lock()
	li.started = time.Now()
	li.task = message
	li.mu.Unlock()

	li.logger.Info().Msg(message + "...")
}

func (li *LogInteractor) StopSpinner(success bool, message string) {
	li.mu.Lock()
	elapsed := time.Since(li.started)
	task := li.task
	li.task = ""
	li.mu.Unlock()

	event := li.logger.Info()
	if !success {
		event = li.logger.Error()
	}
	event.Str("task", task).Dur("elapsed", elapsed).Msg(message)
}

// NopInteractor discards everything
type NopInteractor struct{}

func (NopInteractor) Output(string)            {}
func (NopInteractor) Warning(string)           {}
func (NopInteractor) Error(string, error)      {}
func (NopInteractor) StartSpinner(string)      {}
func (NopInteractor) StopSpinner(bool, string) {}
