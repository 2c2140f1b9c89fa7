package service

import (
	"github.com/target/namescreen/internal/domain/model"
	"github.com/target/namescreen/internal/domain/screening"
)

// TierCounter accumulates per-tier counts during one record processor pass.
// The zero value is ready to use. It is not safe for concurrent use.
type TierCounter struct {
	total, high, medium, low int
	truncated                bool
}

// Add counts one qualifying row in tier.
func (c *TierCounter) Add(tier screening.Tier) {
	c.total++
	switch tier {
	case screening.TierHigh:
		c.high++
	case screening.TierMedium:
		c.medium++
	default:
		c.low++
	}
}

// MarkTruncated records that the row ceiling stopped the pass.
func (c *TierCounter) MarkTruncated() {
	c.truncated = true
}

// Summary returns a snapshot of the counts.
func (c *TierCounter) Summary() model.Summary {
	return model.Summary{
		Total:     c.total,
		High:      c.high,
		Medium:    c.medium,
		Low:       c.low,
		Truncated: c.truncated,
	}
}
