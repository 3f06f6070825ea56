package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SyncLogger manages the log file for a single host synchronization pass.
// Operator-facing detail (which locator strategy matched, page diagnostics,
// low-confidence classifications) lands here; the service-level zerolog
// logger gets the condensed events.
type SyncLogger struct {
	passID    string
	hostID    int64
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

// StartSyncLogging initializes logging for a new sync pass.
func StartSyncLogging(passID string, hostID int64) (*SyncLogger, error) {
	timestamp := time.Now().Format("20060102_150405")
	logFileName := fmt.Sprintf("sync_%d_%s_%s.log", hostID, passID, timestamp)
	logPath := filepath.Join("sync_logs", logFileName)

	if err := os.MkdirAll("sync_logs", 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &SyncLogger{
		passID:    passID,
		hostID:    hostID,
		logFile:   logFile,
		startTime: time.Now(),
	}

	logger.Log("=== sync pass %s for host %d started ===", passID, hostID)
	return logger, nil
}

// Log writes a formatted message to the pass log.
func (s *SyncLogger) Log(format string, args ...interface{}) {
	if s == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(s.startTime)
	message := fmt.Sprintf("[%s] [+%v] %s\n", timestamp, elapsed.Round(time.Millisecond), fmt.Sprintf(format, args...))
	s.logFile.WriteString(message)
	s.logFile.Sync()
}

// LogError writes an error entry to the pass log and mirrors it to the
// service logger.
func (s *SyncLogger) LogError(context string, err error) {
	if s == nil {
		return
	}
	s.Log("ERROR %s: %v", context, err)
	log.Error().Err(err).Str("pass_id", s.passID).Int64("host_id", s.hostID).Msg(context)
}

// LogStrategyMatch records which element-matching strategy located a page
// control, so future UI breakage is diagnosable rather than silent.
func (s *SyncLogger) LogStrategyMatch(target, strategy string, candidates int) {
	s.Log("located %s via strategy %q (%d candidates)", target, strategy, candidates)
}

// LogLowConfidence records a sender classification that fell back to
// heuristics. These are lossy and must be visible to operators.
func (s *SyncLogger) LogLowConfidence(threadID, reason string) {
	if s == nil {
		return
	}
	s.Log("LOW-CONFIDENCE sender classification for thread %s: %s", threadID, reason)
	log.Warn().Str("thread_id", threadID).Str("reason", reason).
		Str("pass_id", s.passID).Msg("low-confidence sender classification")
}

// LogSection writes a section header to the log.
func (s *SyncLogger) LogSection(title string) {
	if s == nil {
		return
	}
	s.Log("================================================================================")
	s.Log("= %s", title)
	s.Log("================================================================================")
}

// Close finalizes the pass log.
func (s *SyncLogger) Close() {
	if s == nil || s.logFile == nil {
		return
	}
	s.Log("=== sync pass %s finished (duration %v) ===", s.passID, time.Since(s.startTime).Round(time.Millisecond))
	s.logFile.Close()
}
