// Package logging provides config-driven categorized file-based logging for lazkit.
// Logs are written to <state dir>/logs/ with separate files per category.
// Logging is controlled by logging.debug_mode in the lazkit config - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Boot/initialization
	CategoryWallet     Category = "wallet"     // Key loading, message signing
	CategoryChain      Category = "chain"      // Contract calls and transactions
	CategoryStorage    Category = "storage"    // IPFS uploads and downloads
	CategoryProof      Category = "proof"      // Verified computing proof requests
	CategorySettlement Category = "settlement" // Settlement header signing/verification
	CategoryInference  Category = "inference"  // Inference node calls
	CategoryQuery      Category = "query"      // Query node calls
	CategoryWorkflow   Category = "workflow"   // Contribution and onboarding pipelines
	CategoryStore      Category = "store"      // Local ledger
	CategoryHub        Category = "hub"        // Hub HTTP service
	CategoryTwin       Category = "twin"       // Digital twin sessions
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryBoot,
	CategoryWallet,
	CategoryChain,
	CategoryStorage,
	CategoryProof,
	CategorySettlement,
	CategoryInference,
	CategoryQuery,
	CategoryWorkflow,
	CategoryStore,
	CategoryHub,
	CategoryTwin,
}

// Settings mirrors config.LoggingConfig to avoid an import cycle.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	RequestID string                 `json:"req,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Settings
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory.
// Should be called once at startup with the state directory (e.g. .lazkit).
func Initialize(stateDir string, s Settings) error {
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}

	configMu.Lock()
	config = s
	logLevel = parseLevel(s.Level)
	configMu.Unlock()

	if !s.DebugMode {
		logsDir = ""
		return nil // Silent no-op in production mode
	}

	dir := filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logsDir = dir

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== lazkit logging initialized ===")
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", s.Level)

	if len(s.Categories) > 0 {
		enabledCount := 0
		for cat, enabled := range s.Categories {
			if enabled {
				enabledCount++
			}
			bootLogger.Debug("Category '%s': %v", cat, enabled)
		}
		bootLogger.Info("Enabled categories: %d/%d", enabledCount, len(s.Categories))
	} else {
		bootLogger.Info("All categories enabled (no category filter)")
	}

	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func jsonFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

func (l *Logger) emit(level, tag, msg string) {
	if jsonFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s", tag, msg)
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.emit("debug", "DEBUG", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.emit("info", "INFO", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.emit("warn", "WARN", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.emit("error", "ERROR", fmt.Sprintf(format, args...))
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	if jsonFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
			Fields:    fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// BootError logs an error to the boot category
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

// Wallet logs to the wallet category
func Wallet(format string, args ...interface{}) { Get(CategoryWallet).Info(format, args...) }

// WalletDebug logs debug to the wallet category
func WalletDebug(format string, args ...interface{}) { Get(CategoryWallet).Debug(format, args...) }

// Chain logs to the chain category
func Chain(format string, args ...interface{}) { Get(CategoryChain).Info(format, args...) }

// ChainDebug logs debug to the chain category
func ChainDebug(format string, args ...interface{}) { Get(CategoryChain).Debug(format, args...) }

// ChainWarn logs a warning to the chain category
func ChainWarn(format string, args ...interface{}) { Get(CategoryChain).Warn(format, args...) }

// ChainError logs an error to the chain category
func ChainError(format string, args ...interface{}) { Get(CategoryChain).Error(format, args...) }

// Storage logs to the storage category
func Storage(format string, args ...interface{}) { Get(CategoryStorage).Info(format, args...) }

// StorageDebug logs debug to the storage category
func StorageDebug(format string, args ...interface{}) { Get(CategoryStorage).Debug(format, args...) }

// StorageError logs an error to the storage category
func StorageError(format string, args ...interface{}) { Get(CategoryStorage).Error(format, args...) }

// Proof logs to the proof category
func Proof(format string, args ...interface{}) { Get(CategoryProof).Info(format, args...) }

// ProofError logs an error to the proof category
func ProofError(format string, args ...interface{}) { Get(CategoryProof).Error(format, args...) }

// SettlementDebug logs debug to the settlement category
func SettlementDebug(format string, args ...interface{}) {
	Get(CategorySettlement).Debug(format, args...)
}

// SettlementWarn logs a warning to the settlement category
func SettlementWarn(format string, args ...interface{}) {
	Get(CategorySettlement).Warn(format, args...)
}

// Inference logs to the inference category
func Inference(format string, args ...interface{}) { Get(CategoryInference).Info(format, args...) }

// InferenceDebug logs debug to the inference category
func InferenceDebug(format string, args ...interface{}) {
	Get(CategoryInference).Debug(format, args...)
}

// InferenceWarn logs a warning to the inference category
func InferenceWarn(format string, args ...interface{}) {
	Get(CategoryInference).Warn(format, args...)
}

// InferenceError logs an error to the inference category
func InferenceError(format string, args ...interface{}) {
	Get(CategoryInference).Error(format, args...)
}

// Query logs to the query category
func Query(format string, args ...interface{}) { Get(CategoryQuery).Info(format, args...) }

// QueryError logs an error to the query category
func QueryError(format string, args ...interface{}) { Get(CategoryQuery).Error(format, args...) }

// Workflow logs to the workflow category
func Workflow(format string, args ...interface{}) { Get(CategoryWorkflow).Info(format, args...) }

// WorkflowWarn logs a warning to the workflow category
func WorkflowWarn(format string, args ...interface{}) { Get(CategoryWorkflow).Warn(format, args...) }

// WorkflowError logs an error to the workflow category
func WorkflowError(format string, args ...interface{}) {
	Get(CategoryWorkflow).Error(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

// Hub logs to the hub category
func Hub(format string, args ...interface{}) { Get(CategoryHub).Info(format, args...) }

// HubWarn logs a warning to the hub category
func HubWarn(format string, args ...interface{}) { Get(CategoryHub).Warn(format, args...) }

// Twin logs to the twin category
func Twin(format string, args ...interface{}) { Get(CategoryTwin).Info(format, args...) }

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a request-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) formatMsg(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if len(r.fields) > 0 {
		return fmt.Sprintf("[req:%s] %s | %v", r.requestID, msg, r.fields)
	}
	return fmt.Sprintf("[req:%s] %s", r.requestID, msg)
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	r.logger.logger.Printf("[INFO] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	r.logger.logger.Printf("[WARN] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.logger.Printf("[ERROR] %s", r.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
