// Package movement 将原始姿态观测推导为运动状态帧
//
// 推导内容：
// - 躯干质心线速度/角速度、加速度、加加速度（历史不足时为零）
// - 关节角度（三点夹角，法向余弦公式）
// - 身体区域受力估计
// - 稳定性评分（重心侧偏 + 关键点可见度，权重 0.7/0.3）
// - 疲劳指标（速度衰减/抖动/姿态漂移）
//
// Builder 独占帧环形缓冲区的写入权，其他阶段只能通过
// History/Recent 获取快照拷贝
package movement

import (
	"math"
	"time"

	"wisefido-motion-coach/internal/models"
	"wisefido-motion-coach/internal/ringbuf"

	"go.uber.org/zap"
)

// 疲劳指标的滑动窗口大小
const (
	velocityWindow = 30 // 速度衰减：最近 1 秒 @30fps
	tremorWindow   = 10 // 抖动：最近 10 帧加速度
	baselineFrames = 60 // 稳定性基线：会话前 2 秒
)

// Builder 运动状态构建器（帧缓冲区的唯一写者）
type Builder struct {
	frames *ringbuf.Buffer[models.MovementFrame]
	logger *zap.Logger

	// 上一帧的推导中间量（仅 Build 内部读写）
	prevCentroid  *point3
	prevTilt      float64
	prevTimestamp time.Time

	// 疲劳基线
	peakVelocity  float64
	baseStability float64
	baseSamples   int
}

type point3 struct {
	x, y, z float64
}

// NewBuilder 创建运动状态构建器
func NewBuilder(bufferSize int, logger *zap.Logger) *Builder {
	return &Builder{
		frames: ringbuf.New[models.MovementFrame](bufferSize),
		logger: logger,
	}
}

// Build 从一帧观测构建运动状态帧并追加到缓冲区
//
// 永不失败：关键点缺失或历史不足时返回相应字段为零值的帧
func (b *Builder) Build(obs *models.PoseObservation) models.MovementFrame {
	frame := models.MovementFrame{
		JointAngles: make(map[string]float64),
		RegionLoads: make(map[string]float64),
		Timestamp:   obs.Timestamp,
	}

	if !obs.Valid() {
		b.logger.Debug("Observation has insufficient landmarks",
			zap.String("session_id", obs.SessionID),
			zap.Int("landmark_count", len(obs.Landmarks)),
		)
		b.frames.Append(frame)
		return frame
	}

	centroid := torsoCentroid(obs.Landmarks)
	tilt := torsoTilt(obs.Landmarks)
	dt := obs.Timestamp.Sub(b.prevTimestamp).Seconds()

	// 速度：躯干质心位移 / 时间差
	// 时间戳重复或乱序（dt <= 0）时报告零速度而不是报错
	if b.prevCentroid != nil && dt > 0 {
		frame.LinearVelocity = distance(centroid, *b.prevCentroid) / dt
		frame.AngularVelocity = (tilt - b.prevTilt) / dt
	}

	// 加速度需要至少 3 帧，加加速度需要至少 4 帧
	if dt > 0 {
		history := b.frames.Last(2)
		if len(history) >= 2 {
			prev := history[len(history)-1]
			frame.Acceleration = (frame.LinearVelocity - prev.LinearVelocity) / dt
			if b.frames.Len() >= 3 {
				frame.Jerk = (frame.Acceleration - prev.Acceleration) / dt
			}
		}
	}

	b.buildJointAngles(obs.Landmarks, frame.JointAngles)
	b.buildRegionLoads(&frame)
	frame.StabilityScore = stabilityScore(obs.Landmarks)
	frame.Fatigue = b.buildFatigue(&frame)

	b.frames.Append(frame)
	b.prevCentroid = &centroid
	b.prevTilt = tilt
	b.prevTimestamp = obs.Timestamp

	return frame
}

// History 帧历史快照（从旧到新）
func (b *Builder) History() []models.MovementFrame {
	return b.frames.Snapshot()
}

// Recent 最近 k 帧快照
func (b *Builder) Recent(k int) []models.MovementFrame {
	return b.frames.Last(k)
}

// Len 当前缓冲的帧数
func (b *Builder) Len() int {
	return b.frames.Len()
}

// Reset 清空缓冲区和推导基线（会话重置时调用）
func (b *Builder) Reset() {
	b.frames.Clear()
	b.prevCentroid = nil
	b.prevTilt = 0
	b.prevTimestamp = time.Time{}
	b.peakVelocity = 0
	b.baseStability = 0
	b.baseSamples = 0
}

// buildJointAngles 计算解剖相邻三点的关节角度
func (b *Builder) buildJointAngles(lm []models.Landmark, angles map[string]float64) {
	angles[models.JointLeftKnee] = jointAngle(lm, models.LandmarkLeftHip, models.LandmarkLeftKnee, models.LandmarkLeftAnkle)
	angles[models.JointRightKnee] = jointAngle(lm, models.LandmarkRightHip, models.LandmarkRightKnee, models.LandmarkRightAnkle)
	angles[models.JointLeftHip] = jointAngle(lm, models.LandmarkLeftShoulder, models.LandmarkLeftHip, models.LandmarkLeftKnee)
	angles[models.JointRightHip] = jointAngle(lm, models.LandmarkRightShoulder, models.LandmarkRightHip, models.LandmarkRightKnee)
	angles[models.JointLeftElbow] = jointAngle(lm, models.LandmarkLeftShoulder, models.LandmarkLeftElbow, models.LandmarkLeftWrist)
	angles[models.JointRightElbow] = jointAngle(lm, models.LandmarkRightShoulder, models.LandmarkRightElbow, models.LandmarkRightWrist)
	angles[models.JointLeftShoulder] = jointAngle(lm, models.LandmarkLeftElbow, models.LandmarkLeftShoulder, models.LandmarkLeftHip)
	angles[models.JointRightShoulder] = jointAngle(lm, models.LandmarkRightElbow, models.LandmarkRightShoulder, models.LandmarkRightHip)
}

// buildRegionLoads 估计各身体区域受力
//
// 经验公式：屈曲越深、速度越快，受力越大
func (b *Builder) buildRegionLoads(frame *models.MovementFrame) {
	velocityFactor := 0.6 + 0.4*math.Min(frame.LinearVelocity/2.0, 1.0)

	kneeAngle := math.Min(frame.JointAngles[models.JointLeftKnee], frame.JointAngles[models.JointRightKnee])
	hipAngle := math.Min(frame.JointAngles[models.JointLeftHip], frame.JointAngles[models.JointRightHip])
	shoulderAngle := math.Max(frame.JointAngles[models.JointLeftShoulder], frame.JointAngles[models.JointRightShoulder])

	frame.RegionLoads[models.RegionKnees] = clamp01((180 - kneeAngle) / 180 * velocityFactor)
	frame.RegionLoads[models.RegionHips] = clamp01((180 - hipAngle) / 180 * velocityFactor)
	// 髋屈曲越深，腰部代偿越大
	frame.RegionLoads[models.RegionLowerBack] = clamp01((180 - hipAngle) / 150 * velocityFactor)
	frame.RegionLoads[models.RegionShoulders] = clamp01(shoulderAngle / 180 * velocityFactor)
	frame.RegionLoads[models.RegionAnkles] = clamp01(frame.LinearVelocity / 3.0)
}

// buildFatigue 从滑动窗口推导疲劳指标
func (b *Builder) buildFatigue(frame *models.MovementFrame) models.FatigueIndicators {
	var f models.FatigueIndicators

	// 速度衰减：近期平均速度相对会话峰值
	if frame.LinearVelocity > b.peakVelocity {
		b.peakVelocity = frame.LinearVelocity
	}
	if b.peakVelocity > 0.1 {
		recent := b.frames.Last(velocityWindow)
		if len(recent) >= velocityWindow/2 {
			var sum float64
			for _, r := range recent {
				sum += r.LinearVelocity
			}
			avg := sum / float64(len(recent))
			f.VelocityDecay = clamp01(1 - avg/b.peakVelocity)
		}
	}

	// 抖动：近期加速度的标准差
	recent := b.frames.Last(tremorWindow)
	if len(recent) >= tremorWindow/2 {
		var mean float64
		for _, r := range recent {
			mean += r.Acceleration
		}
		mean /= float64(len(recent))
		var variance float64
		for _, r := range recent {
			variance += (r.Acceleration - mean) * (r.Acceleration - mean)
		}
		variance /= float64(len(recent))
		f.TremorLevel = clamp01(math.Sqrt(variance) / 5.0)
	}

	// 姿态漂移：稳定性相对会话早期基线的滑落
	if b.baseSamples < baselineFrames {
		b.baseStability = (b.baseStability*float64(b.baseSamples) + frame.StabilityScore) / float64(b.baseSamples+1)
		b.baseSamples++
	} else if b.baseStability > 0 {
		f.PostureDrift = clamp01((b.baseStability - frame.StabilityScore) / b.baseStability)
	}

	return f
}

// torsoCentroid 躯干质心（双肩 + 双髋的均值）
func torsoCentroid(lm []models.Landmark) point3 {
	indices := []int{
		models.LandmarkLeftShoulder, models.LandmarkRightShoulder,
		models.LandmarkLeftHip, models.LandmarkRightHip,
	}
	var c point3
	for _, i := range indices {
		c.x += lm[i].X
		c.y += lm[i].Y
		c.z += lm[i].Z
	}
	n := float64(len(indices))
	return point3{c.x / n, c.y / n, c.z / n}
}

// torsoTilt 躯干相对竖直方向的倾角（度）
func torsoTilt(lm []models.Landmark) float64 {
	shoulderMidX := (lm[models.LandmarkLeftShoulder].X + lm[models.LandmarkRightShoulder].X) / 2
	shoulderMidY := (lm[models.LandmarkLeftShoulder].Y + lm[models.LandmarkRightShoulder].Y) / 2
	hipMidX := (lm[models.LandmarkLeftHip].X + lm[models.LandmarkRightHip].X) / 2
	hipMidY := (lm[models.LandmarkLeftHip].Y + lm[models.LandmarkRightHip].Y) / 2

	dx := shoulderMidX - hipMidX
	dy := shoulderMidY - hipMidY
	if dx == 0 && dy == 0 {
		return 0
	}
	// 图像坐标 y 向下，竖直躯干时 dy < 0
	return math.Atan2(math.Abs(dx), math.Abs(dy)) * 180 / math.Pi
}

// jointAngle 三点夹角（b 为顶点，返回度数）
//
// 点积结果在传入 acos 前钳制到 [-1,1]，避免浮点溢出导致 NaN
func jointAngle(lm []models.Landmark, ia, ib, ic int) float64 {
	ax, ay := lm[ia].X-lm[ib].X, lm[ia].Y-lm[ib].Y
	cx, cy := lm[ic].X-lm[ib].X, lm[ic].Y-lm[ib].Y

	magA := math.Sqrt(ax*ax + ay*ay)
	magC := math.Sqrt(cx*cx + cy*cy)
	if magA == 0 || magC == 0 {
		return 0
	}

	cos := (ax*cx + ay*cy) / (magA * magC)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// stabilityScore 稳定性评分
//
// 0.7 * 平衡项（重心相对支撑面中点的侧偏，按支撑面宽度归一化）
// + 0.3 * 平均关键点可见度
func stabilityScore(lm []models.Landmark) float64 {
	centroid := torsoCentroid(lm)

	baseMidX := (lm[models.LandmarkLeftAnkle].X + lm[models.LandmarkRightAnkle].X) / 2
	baseWidth := math.Abs(lm[models.LandmarkLeftAnkle].X - lm[models.LandmarkRightAnkle].X)

	balance := 1.0
	if baseWidth > 1e-6 {
		offset := math.Abs(centroid.x-baseMidX) / baseWidth
		balance = clamp01(1 - offset)
	}

	var visSum float64
	for _, p := range lm {
		visSum += p.Visibility
	}
	meanVisibility := visSum / float64(len(lm))

	return clamp01(0.7*balance + 0.3*meanVisibility)
}

func distance(a, b point3) float64 {
	dx, dy, dz := a.x-b.x, a.y-b.y, a.z-b.z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
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
