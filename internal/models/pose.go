package models

import "time"

// 关键点索引（与摄像头端姿态检测器的 33 点布局一致）
// 这里只列出本服务实际使用的索引
const (
	LandmarkNose          = 0
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftElbow     = 13
	LandmarkRightElbow    = 14
	LandmarkLeftWrist     = 15
	LandmarkRightWrist    = 16
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
	LandmarkLeftKnee      = 25
	LandmarkRightKnee     = 26
	LandmarkLeftAnkle     = 27
	LandmarkRightAnkle    = 28

	// 完整姿态的关键点数量
	LandmarkCount = 33
)

// Landmark 单个关键点（归一化坐标 + 可见度置信度）
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"` // 0.0-1.0
}

// PoseObservation 一帧姿态观测（来自摄像头端检测器，约 30fps）
//
// 观测数据由调用方持有，管线在一次处理调用内只读借用，
// 不保留对 Landmarks 切片的引用
type PoseObservation struct {
	SessionID string     `json:"session_id"`
	DeviceID  string     `json:"device_id,omitempty"`
	Landmarks []Landmark `json:"landmarks"`
	Timestamp time.Time  `json:"timestamp"`
}

// Valid 检查观测是否包含足够的关键点
func (p *PoseObservation) Valid() bool {
	return len(p.Landmarks) >= LandmarkCount
}

// UserState 外部提供的用户状态（心情/精力/专注度，由用户状态服务维护）
type UserState struct {
	Mood        float64         `json:"mood"`   // 0.0-1.0
	Energy      float64         `json:"energy"` // 0.0-1.0
	Focus       float64         `json:"focus"`  // 0.0-1.0
	Preferences UserPreferences `json:"preferences"`
}

// UserPreferences 用户教练偏好
type UserPreferences struct {
	ProactiveCoaching  bool   `json:"proactive_coaching"`  // 是否接受主动性技术优化建议
	PreferredIntensity string `json:"preferred_intensity"` // low, moderate, high
	AudioCues          bool   `json:"audio_cues"`
}
