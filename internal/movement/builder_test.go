package movement

import (
	"math"
	"testing"
	"time"

	"wisefido-motion-coach/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// standingPose 构造一个直立姿态的观测（33 个关键点，全部可见）
func standingPose(ts time.Time, offsetX float64) *models.PoseObservation {
	lm := make([]models.Landmark, models.LandmarkCount)
	for i := range lm {
		lm[i] = models.Landmark{X: 0.5 + offsetX, Y: 0.5, Visibility: 1.0}
	}

	set := func(idx int, x, y float64) {
		lm[idx] = models.Landmark{X: x + offsetX, Y: y, Visibility: 1.0}
	}

	// 直立姿态：肩-髋-膝-踝 大致在一条竖直线上
	set(models.LandmarkNose, 0.5, 0.1)
	set(models.LandmarkLeftShoulder, 0.45, 0.3)
	set(models.LandmarkRightShoulder, 0.55, 0.3)
	set(models.LandmarkLeftElbow, 0.42, 0.45)
	set(models.LandmarkRightElbow, 0.58, 0.45)
	set(models.LandmarkLeftWrist, 0.40, 0.58)
	set(models.LandmarkRightWrist, 0.60, 0.58)
	set(models.LandmarkLeftHip, 0.46, 0.55)
	set(models.LandmarkRightHip, 0.54, 0.55)
	set(models.LandmarkLeftKnee, 0.46, 0.75)
	set(models.LandmarkRightKnee, 0.54, 0.75)
	set(models.LandmarkLeftAnkle, 0.46, 0.95)
	set(models.LandmarkRightAnkle, 0.54, 0.95)

	return &models.PoseObservation{
		SessionID: "session-1",
		Landmarks: lm,
		Timestamp: ts,
	}
}

func TestBuilder_FirstFrameHasZeroKinematics(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())

	frame := builder.Build(standingPose(time.Now(), 0))

	assert.Zero(t, frame.LinearVelocity)
	assert.Zero(t, frame.Acceleration)
	assert.Zero(t, frame.Jerk)
	assert.Equal(t, 1, builder.Len())
}

func TestBuilder_VelocityFromCentroidDelta(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())
	t0 := time.Now()

	builder.Build(standingPose(t0, 0))
	// 100ms 内质心右移 0.1 → 速度 1.0 单位/秒
	frame := builder.Build(standingPose(t0.Add(100*time.Millisecond), 0.1))

	assert.InDelta(t, 1.0, frame.LinearVelocity, 0.01)
}

func TestBuilder_DuplicateTimestampYieldsZeroVelocity(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())
	t0 := time.Now()

	builder.Build(standingPose(t0, 0))
	// 相同时间戳（dt = 0）：速度为零而不是 NaN/Inf
	frame := builder.Build(standingPose(t0, 0.2))

	assert.Zero(t, frame.LinearVelocity)
	assert.False(t, math.IsNaN(frame.LinearVelocity))
	assert.False(t, math.IsInf(frame.LinearVelocity, 0))
	assert.Zero(t, frame.Acceleration)
}

func TestBuilder_AccelerationRequiresThreeFrames(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())
	t0 := time.Now()

	builder.Build(standingPose(t0, 0))
	second := builder.Build(standingPose(t0.Add(33*time.Millisecond), 0.05))
	assert.Zero(t, second.Acceleration)

	third := builder.Build(standingPose(t0.Add(66*time.Millisecond), 0.15))
	assert.NotZero(t, third.Acceleration)
	assert.Zero(t, third.Jerk) // 加加速度需要 4 帧

	fourth := builder.Build(standingPose(t0.Add(99*time.Millisecond), 0.35))
	assert.NotZero(t, fourth.Jerk)
}

func TestBuilder_FrameBufferBounded(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())
	t0 := time.Now()

	for i := 0; i < 200; i++ {
		builder.Build(standingPose(t0.Add(time.Duration(i)*33*time.Millisecond), 0))
		assert.LessOrEqual(t, builder.Len(), 150)
	}

	history := builder.History()
	assert.Len(t, history, 150)
	// 保留的是最后 150 帧且按时间有序
	assert.Equal(t, t0.Add(50*33*time.Millisecond), history[0].Timestamp)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].Timestamp.After(history[i-1].Timestamp))
	}
}

func TestBuilder_InsufficientLandmarks(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())

	frame := builder.Build(&models.PoseObservation{
		SessionID: "session-1",
		Landmarks: []models.Landmark{{X: 0.5, Y: 0.5}},
		Timestamp: time.Now(),
	})

	// 尽力而为：返回零值帧而不是失败
	assert.Zero(t, frame.LinearVelocity)
	assert.Zero(t, frame.StabilityScore)
	assert.Equal(t, 1, builder.Len())
}

func TestBuilder_Reset(t *testing.T) {
	builder := NewBuilder(150, zap.NewNop())
	builder.Build(standingPose(time.Now(), 0))
	require.Equal(t, 1, builder.Len())

	builder.Reset()
	assert.Equal(t, 0, builder.Len())
}

// ============================================
// 角度公式测试
// ============================================

func angleObservation(a, b, c [2]float64) []models.Landmark {
	lm := make([]models.Landmark, models.LandmarkCount)
	lm[models.LandmarkLeftHip] = models.Landmark{X: a[0], Y: a[1], Visibility: 1}
	lm[models.LandmarkLeftKnee] = models.Landmark{X: b[0], Y: b[1], Visibility: 1}
	lm[models.LandmarkLeftAnkle] = models.Landmark{X: c[0], Y: c[1], Visibility: 1}
	return lm
}

func TestJointAngle_RightAngle(t *testing.T) {
	lm := angleObservation([2]float64{0, 1}, [2]float64{0, 0}, [2]float64{1, 0})
	angle := jointAngle(lm, models.LandmarkLeftHip, models.LandmarkLeftKnee, models.LandmarkLeftAnkle)
	assert.InDelta(t, 90.0, angle, 0.001)
}

func TestJointAngle_CollinearPoints(t *testing.T) {
	// 三点共线且顶点在中间 → 180°
	lm := angleObservation([2]float64{0, 0}, [2]float64{0, 0.5}, [2]float64{0, 1})
	angle := jointAngle(lm, models.LandmarkLeftHip, models.LandmarkLeftKnee, models.LandmarkLeftAnkle)
	assert.InDelta(t, 180.0, angle, 0.001)

	// 三点共线且两端点在同侧 → 0°
	lm = angleObservation([2]float64{0, 1}, [2]float64{0, 0}, [2]float64{0, 2})
	angle = jointAngle(lm, models.LandmarkLeftHip, models.LandmarkLeftKnee, models.LandmarkLeftAnkle)
	assert.InDelta(t, 0.0, angle, 0.001)
}

func TestJointAngle_NoNaNFromFloatOvershoot(t *testing.T) {
	// 数值上可能使 cos 略超 1 的接近共线三点
	lm := angleObservation([2]float64{0.1, 0.1}, [2]float64{0.2, 0.2}, [2]float64{0.3, 0.3})
	angle := jointAngle(lm, models.LandmarkLeftHip, models.LandmarkLeftKnee, models.LandmarkLeftAnkle)
	assert.False(t, math.IsNaN(angle))
}

func TestStabilityScore_CenteredStanding(t *testing.T) {
	obs := standingPose(time.Now(), 0)
	score := stabilityScore(obs.Landmarks)

	// 重心居中且全部可见 → 接近 1.0
	assert.InDelta(t, 1.0, score, 0.05)
}
