package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActivityLogger records lifecycle outcomes to the activity_log table and a
// daily JSONL file. Dispatched operations report here because their callers
// have already returned.
type ActivityLogger struct {
	db          *sql.DB
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// Activity represents a logged activity
type Activity struct {
	Timestamp    time.Time              `json:"timestamp"`
	ServerID     string                 `json:"server_id"`
	OperationID  string                 `json:"operation_id,omitempty"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityInstallUpdate = "operation.install_update"
	ActivityLaunch        = "operation.launch"
	ActivityProcessExit   = "process.exit"
	ActivityServerCreate  = "server.create"
	ActivityServerUpdate  = "server.update"
	ActivityServerDelete  = "server.delete"
	ActivityError         = "error"
)

// NewActivityLogger creates a new activity logger
func NewActivityLogger(db *sql.DB, logDir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	log.Printf("[ActivityLogger] Initialized (log directory: %s)", logDir)

	return &ActivityLogger{
		db:     db,
		logDir: logDir,
	}, nil
}

// LogActivity logs an activity to both database and file
func (al *ActivityLogger) LogActivity(activity *Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	if err := al.logToDatabase(activity); err != nil {
		// the file copy is still written
		log.Printf("[ActivityLogger] Error logging to database: %v", err)
	}

	if err := al.logToFile(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to file: %v", err)
		return err
	}

	return nil
}

// LogOperation records the end of an install/update or launch operation.
func (al *ActivityLogger) LogOperation(serverID, operationID, activityType string, success bool, errorMsg string, metadata map[string]interface{}) error {
	description := "Operation completed"
	if !success {
		description = "Operation failed"
	}

	return al.LogActivity(&Activity{
		ServerID:     serverID,
		OperationID:  operationID,
		ActivityType: activityType,
		Description:  description,
		Metadata:     metadata,
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogProcessExit records the exit status observed by a run's background wait.
func (al *ActivityLogger) LogProcessExit(serverID, operationID string, exitCode int, duration time.Duration, errorMsg string) error {
	return al.LogActivity(&Activity{
		ServerID:     serverID,
		OperationID:  operationID,
		ActivityType: ActivityProcessExit,
		Description:  fmt.Sprintf("Process exited with code %d after %s", exitCode, duration.Round(time.Millisecond)),
		Metadata: map[string]interface{}{
			"exit_code":   exitCode,
			"duration_ms": duration.Milliseconds(),
		},
		Success:      exitCode == 0 && errorMsg == "",
		ErrorMessage: errorMsg,
	})
}

// LogServerChange records a create/update/delete of a server record.
func (al *ActivityLogger) LogServerChange(serverID, activityType, description string) error {
	return al.LogActivity(&Activity{
		ServerID:     serverID,
		ActivityType: activityType,
		Description:  description,
		Success:      true,
	})
}

// GetActivities retrieves activities from the database
func (al *ActivityLogger) GetActivities(serverID string, activityType string, since time.Time, limit int) ([]*Activity, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT timestamp, server_id, operation_id, activity_type, description, metadata, success, error_message
		FROM activity_log
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if serverID != "" {
		query += " AND server_id = ?"
		args = append(args, serverID)
	}

	if activityType != "" {
		query += " AND activity_type = ?"
		args = append(args, activityType)
	}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*Activity, 0)

	for rows.Next() {
		activity := &Activity{}
		var operationID sql.NullString
		var metadataJSON sql.NullString
		var errorMessage sql.NullString

		if err := rows.Scan(
			&activity.Timestamp,
			&activity.ServerID,
			&operationID,
			&activity.ActivityType,
			&activity.Description,
			&metadataJSON,
			&activity.Success,
			&errorMessage,
		); err != nil {
			log.Printf("[ActivityLogger] Error scanning row: %v", err)
			continue
		}

		activity.OperationID = operationID.String
		activity.ErrorMessage = errorMessage.String

		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &activity.Metadata); err != nil {
				log.Printf("[ActivityLogger] Error unmarshaling metadata: %v", err)
			}
		}

		activities = append(activities, activity)
	}

	return activities, rows.Err()
}

// GetServerActivities retrieves activities for a specific server
func (al *ActivityLogger) GetServerActivities(serverID string, limit int) ([]*Activity, error) {
	return al.GetActivities(serverID, "", time.Time{}, limit)
}

func (al *ActivityLogger) logToDatabase(activity *Activity) error {
	if al.db == nil {
		return nil
	}

	metadataJSON, err := json.Marshal(activity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = al.db.Exec(`
		INSERT INTO activity_log (
			timestamp, server_id, operation_id, activity_type,
			description, metadata, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		activity.Timestamp,
		activity.ServerID,
		activity.OperationID,
		activity.ActivityType,
		activity.Description,
		string(metadataJSON),
		activity.Success,
		activity.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

func (al *ActivityLogger) logToFile(activity *Activity) error {
	currentDate := time.Now().Format("2006-01-02")

	if al.currentFile == nil || al.currentDate != currentDate {
		if err := al.rotateLogFile(currentDate); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	if _, err := fmt.Fprintf(al.currentFile, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	if !activity.Success {
		al.currentFile.Sync()
	}

	return nil
}

func (al *ActivityLogger) rotateLogFile(date string) error {
	if al.currentFile != nil {
		al.currentFile.Close()
		al.currentFile = nil
	}

	logPath := filepath.Join(al.logDir, fmt.Sprintf("activity-%s.log", date))

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	al.currentFile = file
	al.currentDate = date

	return nil
}

// Close closes the activity logger
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentFile != nil {
		err := al.currentFile.Close()
		al.currentFile = nil
		return err
	}

	return nil
}

// CleanupOldActivities removes activities older than a specified duration
func (al *ActivityLogger) CleanupOldActivities(olderThan time.Duration) error {
	if al.db == nil {
		return fmt.Errorf("database not available")
	}

	cutoff := time.Now().Add(-olderThan)

	result, err := al.db.Exec(`DELETE FROM activity_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old activities: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	log.Printf("[ActivityLogger] Cleaned up %d activities older than %v", rowsAffected, olderThan)

	return nil
}
