// Package audit writes an append-only JSONL trail of processing activity:
// uploads, pipeline runs, cached hits and transcript exports. Entries
// carry the session id and the upload's content hash so a processed file
// can be traced back even after the session is deleted.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger records processing activity with automatic log rotation.
type Logger struct {
	logger *log.Logger
}

// NewLogger creates an audit logger with lumberjack rotation on logPath.
func NewLogger(logPath string) *Logger {
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,  // Keep 10 old files
		MaxAge:     30,  // Keep for 30 days
		Compress:   true,
	}

	return &Logger{
		logger: log.New(writer, "", 0), // No prefix, no timestamp (we add our own)
	}
}

// LogUpload records an accepted audio upload.
func (a *Logger) LogUpload(sessionID, filename, sourceHash string, sizeBytes int64, sourceIP string) {
	record := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"event":       "upload",
		"session_id":  sessionID,
		"filename":    filename,
		"source_hash": sourceHash,
		"size_bytes":  sizeBytes,
		"source_ip":   sourceIP,
	}
	a.write(record)
}

// LogRun records a finished pipeline run, successful or failed.
func (a *Logger) LogRun(sessionID, sourceHash string, records, speakers int, durationMs int64, runErr error) {
	record := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"event":       "pipeline_run",
		"session_id":  sessionID,
		"source_hash": sourceHash,
		"records":     records,
		"speakers":    speakers,
		"duration_ms": durationMs,
		"result":      "success",
	}
	if runErr != nil {
		record["result"] = "failed"
		record["error_message"] = runErr.Error()
	}
	a.write(record)
}

// LogCachedHit records a process trigger served from the memoized result.
func (a *Logger) LogCachedHit(sessionID, sourceHash string) {
	record := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"event":       "pipeline_run",
		"session_id":  sessionID,
		"source_hash": sourceHash,
		"result":      "cached",
	}
	a.write(record)
}

// LogExport records a transcript download.
func (a *Logger) LogExport(sessionID, format, sourceIP string) {
	record := map[string]interface{}{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"event":      "export",
		"session_id": sessionID,
		"format":     format,
		"source_ip":  sourceIP,
	}
	a.write(record)
}

func (a *Logger) write(record map[string]interface{}) {
	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}
