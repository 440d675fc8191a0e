package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ArtifactVersion 当前模型文件格式版本
const ArtifactVersion = 1

// DefaultModelPath 默认模型路径
const DefaultModelPath = "models/model_profit_clf.json"

// Artifact 编码器与森林打包为一个 JSON 文件
type Artifact struct {
	Version     int           `json:"version"`
	TrainedAt   time.Time     `json:"trained_at"`
	FeatureCols []string      `json:"feature_cols"`
	Encoder     *Encoder      `json:"encoder"`
	Forest      *RandomForest `json:"forest"`
	Metrics     *Metrics      `json:"metrics,omitempty"`
}

// Validate 检查结构完整性
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if a.Encoder == nil || a.Forest == nil {
		return errors.New("artifact is missing encoder or forest")
	}
	if err := a.Forest.validate(); err != nil {
		return err
	}
	if w := a.Encoder.Width(); w != a.Forest.NFeatures {
		return fmt.Errorf("encoder width %d does not match forest features %d", w, a.Forest.NFeatures)
	}
	return nil
}

// SaveArtifact 写入模型文件，必要时创建父目录。
// 先写临时文件再重命名，读取方不会看到半个文件
func SaveArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadArtifact 读取模型文件。文件不存在时返回 ErrModelUnavailable
func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrModelUnavailable, path)
	}
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &a, nil
}

// LoadModel 读取模型并创建预测器
func LoadModel(path string) (*Predictor, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewPredictor(a), nil
}
