package encounter

import "time"

// TurnDelay computes how long to wait before starting the next turn:
// whatever remains of the minimum gap since the last action, plus the round
// cooldown when the cursor wrapped. A zero lastActionAt counts as long ago,
// so the first turn starts immediately.
//
// Postcondition: return value >= 0.
func TurnDelay(now, lastActionAt time.Time, wrapped bool, minGap, roundCooldown time.Duration) time.Duration {
	var delay time.Duration
	if !lastActionAt.IsZero() {
		if since := now.Sub(lastActionAt); since < minGap {
			delay = minGap - since
		}
	}
	if wrapped {
		delay += roundCooldown
	}
	return delay
}
