package models

import "time"

// 身体区域标识（用于受力估计和干预事件的目标区域）
const (
	RegionKnees     = "knees"
	RegionHips      = "hips"
	RegionLowerBack = "lower_back"
	RegionShoulders = "shoulders"
	RegionElbows    = "elbows"
	RegionAnkles    = "ankles"
)

// 关节角度标识（JointAngles 的键）
const (
	JointLeftKnee      = "left_knee"
	JointRightKnee     = "right_knee"
	JointLeftHip       = "left_hip"
	JointRightHip      = "right_hip"
	JointLeftElbow     = "left_elbow"
	JointRightElbow    = "right_elbow"
	JointLeftShoulder  = "left_shoulder"
	JointRightShoulder = "right_shoulder"
)

// MovementFrame 运动状态帧（由一帧观测 + 近期历史推导）
//
// 每帧观测产生一个 MovementFrame，追加到帧环形缓冲区
// （容量 150，约 5 秒 @30fps），历史不足时相关字段为零值
type MovementFrame struct {
	// 躯干质心运动学量
	LinearVelocity  float64 `json:"linear_velocity"`  // 单位/秒
	AngularVelocity float64 `json:"angular_velocity"` // 度/秒（躯干倾角变化率）
	Acceleration    float64 `json:"acceleration"`     // 单位/秒²（至少需要 3 帧）
	Jerk            float64 `json:"jerk"`             // 单位/秒³（至少需要 4 帧）

	// 关节角度（度，键见 Joint* 常量）
	JointAngles map[string]float64 `json:"joint_angles"`

	// 各身体区域受力估计（归一化 0.0-1.0+）
	RegionLoads map[string]float64 `json:"region_loads"`

	// 稳定性评分：0.7 * 平衡项 + 0.3 * 平均关键点可见度
	StabilityScore float64 `json:"stability_score"` // 0.0-1.0

	// 疲劳指标
	Fatigue FatigueIndicators `json:"fatigue"`

	Timestamp time.Time `json:"timestamp"`
}

// FatigueIndicators 疲劳指标（从速度衰减/抖动/姿态漂移推导）
type FatigueIndicators struct {
	VelocityDecay float64 `json:"velocity_decay"` // 0.0-1.0，近期速度相对峰值的衰减
	TremorLevel   float64 `json:"tremor_level"`   // 0.0-1.0，加速度高频抖动
	PostureDrift  float64 `json:"posture_drift"`  // 0.0-1.0，稳定性滑落
}

// Level 综合疲劳水平
func (f FatigueIndicators) Level() float64 {
	return clamp01(0.5*f.VelocityDecay + 0.3*f.TremorLevel + 0.2*f.PostureDrift)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
