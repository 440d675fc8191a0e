package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"superstore/ml"
)

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_path TEXT NOT NULL,
        n_train INTEGER NOT NULL,
        n_test INTEGER NOT NULL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        feature_cols TEXT,
        duration_ms INTEGER,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT,
        mode TEXT NOT NULL,
        label INTEGER NOT NULL,
        probability REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_session ON predictions(session_id);
`

// Store 训练与预测日志
type Store struct {
	db *sql.DB
}

// Open 打开（或创建）SQLite 数据库并建表
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if strings.Contains(path, ":memory:") {
		// 每个连接是独立的内存库
		database.SetMaxOpenConns(1)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrainingLog 一次训练的记录
type TrainingLog struct {
	ID          int64         `json:"id"`
	ModelPath   string        `json:"model_path"`
	NTrain      int           `json:"n_train"`
	NTest       int           `json:"n_test"`
	Accuracy    float64       `json:"accuracy"`
	Precision   float64       `json:"precision"`
	Recall      float64       `json:"recall"`
	F1          float64       `json:"f1"`
	FeatureCols []string      `json:"feature_cols"`
	Duration    time.Duration `json:"duration"`
	TrainedAt   time.Time     `json:"trained_at"`
}

// TrainingLogFromReport 从训练报告生成日志记录
func TrainingLogFromReport(r *ml.TrainingReport) TrainingLog {
	return TrainingLog{
		ModelPath:   r.ModelPath,
		NTrain:      r.NTrain,
		NTest:       r.NTest,
		Accuracy:    r.Metrics.Accuracy,
		Precision:   r.Metrics.Precision,
		Recall:      r.Metrics.Recall,
		F1:          r.Metrics.F1,
		FeatureCols: r.FeatureCols,
		Duration:    r.Duration,
		TrainedAt:   r.TrainedAt,
	}
}

// SaveTrainingLog 写入一条训练记录，返回行 ID
func (s *Store) SaveTrainingLog(ctx context.Context, l TrainingLog) (int64, error) {
	cols, err := json.Marshal(l.FeatureCols)
	if err != nil {
		return 0, err
	}
	trainedAt := l.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_path, n_train, n_test, accuracy, precision, recall, f1, feature_cols, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, l.ModelPath, l.NTrain, l.NTest, l.Accuracy, l.Precision, l.Recall, l.F1,
		string(cols), l.Duration.Milliseconds(), trainedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("save training log: %w", err)
	}
	return res.LastInsertId()
}

// LoadTrainingLog 按时间倒序返回最近的训练记录，limit<=0 表示全部
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	query := `
        SELECT id, model_path, n_train, n_test, accuracy, precision, recall, f1, feature_cols, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			l    TrainingLog
			cols sql.NullString
			ms   int64
		)
		if err := rows.Scan(&l.ID, &l.ModelPath, &l.NTrain, &l.NTest, &l.Accuracy, &l.Precision,
			&l.Recall, &l.F1, &cols, &ms, &l.TrainedAt); err != nil {
			return nil, err
		}
		if cols.Valid && cols.String != "" {
			if err := json.Unmarshal([]byte(cols.String), &l.FeatureCols); err != nil {
				return nil, fmt.Errorf("decode feature columns: %w", err)
			}
		}
		l.Duration = time.Duration(ms) * time.Millisecond
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SavePredictions 在一个事务里记录一批预测
func (s *Store) SavePredictions(ctx context.Context, sessionID, mode string, labels []int, probabilities []float64) error {
	if len(labels) != len(probabilities) {
		return errors.New("labels/probabilities length mismatch")
	}
	if mode == "" {
		return errors.New("mode required")
	}
	if len(labels) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (session_id, mode, label, probability, created_at)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, label := range labels {
		if _, err := stmt.ExecContext(ctx, sessionID, mode, label, probabilities[i], now); err != nil {
			return fmt.Errorf("save prediction %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// CountPredictions 统计预测条数，sessionID 为空时统计全部
func (s *Store) CountPredictions(ctx context.Context, sessionID string) (int, error) {
	var n int
	var err error
	if sessionID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE session_id = ?`, sessionID).Scan(&n)
	}
	return n, err
}
