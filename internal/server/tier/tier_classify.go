package tier

import (
	"time"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/media"
)

// Thresholds decide where an object belongs
type Thresholds struct {
	HotAge     time.Duration
	WarmAge    time.Duration
	AccessRate float64 // accesses per day
}

var DefaultThresholds = Thresholds{
	HotAge:     DefaultHotAge,
	WarmAge:    DefaultWarmAge,
	AccessRate: DefaultAccessRateThreshold,
}

// Classify puts young objects in hot, objects up to WarmAge or still popular in warm, the rest in cold
func (t Thresholds) Classify(obj *media.StoredObject, now time.Time) blob.Tier {
	age := obj.Age(now)
	switch {
	case age <= t.HotAge:
		return blob.TierHot
	case age <= t.WarmAge || AccessRate(obj, now) > t.AccessRate:
		return blob.TierWarm
	default:
		return blob.TierCold
	}
}

// AccessRate is accesses per day of age, with the age floored at one day
func AccessRate(obj *media.StoredObject, now time.Time) float64 {
	ageDays := max(obj.Age(now).Hours()/24, 1)
	return float64(obj.Accesses) / ageDays
}
