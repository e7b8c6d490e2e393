package reconcile

import "time"

// maxBackoff はサイクル失敗時のバックオフの上限。
const maxBackoff = 30 * time.Minute

// CalculateBackoff は連続失敗回数に基づいて次のサイクルまでの待機時間を計算する。
// 1回目はサイクル間隔と同じで、以降2倍ずつ増加し、最大30分。
func CalculateBackoff(interval time.Duration, consecutiveFailures int) time.Duration {
	if interval <= 0 {
		interval = time.Minute
	}
	delay := interval
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
