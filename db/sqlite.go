package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite database used for prediction and training
// run bookkeeping.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        predicted_label INTEGER NOT NULL,
        predicted_class TEXT NOT NULL,
        confidence REAL NOT NULL,
        batch_size INTEGER DEFAULT 1,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_type VARCHAR(50) NOT NULL,
        accuracy REAL NOT NULL,
        data_points INTEGER NOT NULL,
        num_features INTEGER NOT NULL,
        num_classes INTEGER NOT NULL,
        trained_at DATETIME NOT NULL
    );
    `

	_, err = database.Exec(query)
	return err
}

// Enabled reports whether InitDB has been called successfully.
func Enabled() bool {
	return database != nil
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// SavePrediction records one served prediction.
func SavePrediction(label int, class string, confidence float64, batchSize int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO predictions (predicted_label, predicted_class, confidence, batch_size, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		label, class, confidence, batchSize, time.Now().UTC())
	return err
}

type TrainingLog struct {
	ModelType   string    `json:"model_type"`
	Accuracy    float64   `json:"accuracy"`
	DataPoints  int       `json:"data_points"`
	NumFeatures int       `json:"num_features"`
	NumClasses  int       `json:"num_classes"`
	TrainedAt   time.Time `json:"trained_at"`
}

// SaveTrainingLog records a completed training run.
func SaveTrainingLog(entry TrainingLog) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_type, accuracy, data_points, num_features, num_classes, trained_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ModelType, entry.Accuracy, entry.DataPoints, entry.NumFeatures, entry.NumClasses, entry.TrainedAt)
	return err
}

// LoadTrainingLog returns training runs, most recent first.
func LoadTrainingLog() ([]TrainingLog, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT model_type, accuracy, data_points, num_features, num_classes, trained_at
        FROM training_log
        ORDER BY trained_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var entry TrainingLog
		if err := rows.Scan(&entry.ModelType, &entry.Accuracy, &entry.DataPoints,
			&entry.NumFeatures, &entry.NumClasses, &entry.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
