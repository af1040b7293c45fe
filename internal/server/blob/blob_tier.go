package blob

import (
	"fmt"
	"time"
)

type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Tiers lists every tier from the most to the least expensive
var Tiers = []Tier{TierHot, TierWarm, TierCold}

func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownTier, s)
	}
	return t, nil
}

func (t Tier) Valid() bool {
	switch t {
	case TierHot, TierWarm, TierCold:
		return true
	}
	return false
}

// Policy is what a tier costs and promises: how many replicas the store keeps,
// whether edge caches may keep the bytes, and the storage class objects are written with.
type Policy struct {
	Replication  int
	EdgeCache    bool
	CacheMaxAge  time.Duration
	StorageClass string
}

// CacheControl renders the response header for objects in this tier
func (p Policy) CacheControl() string {
	maxAge := int64(p.CacheMaxAge / time.Second)
	if p.EdgeCache {
		return fmt.Sprintf("public, max-age=%d", maxAge)
	}
	return fmt.Sprintf("private, max-age=%d", maxAge)
}
