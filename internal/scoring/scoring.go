// Package scoring turns an answer outcome into points and a new streak value.
package scoring

import (
	"fmt"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// Config holds the tunable scoring constants.
type Config struct {
	EasyPoints   int // base points for easy questions
	MediumPoints int
	HardPoints   int
	// StreakStepPercent is added to the multiplier for every correct answer
	// after the first one in a streak.
	StreakStepPercent int
	// MaxMultiplierPercent caps the multiplier (200 = 2x).
	MaxMultiplierPercent int
}

// DefaultConfig returns production defaults: 10/20/30 base points, +10% per
// streak step, capped at 2x.
func DefaultConfig() Config {
	return Config{
		EasyPoints:           10,
		MediumPoints:         20,
		HardPoints:           30,
		StreakStepPercent:    10,
		MaxMultiplierPercent: 200,
	}
}

// Validate rejects configurations that would break monotonicity.
func (c Config) Validate() error {
	if c.EasyPoints <= 0 || c.MediumPoints <= c.EasyPoints || c.HardPoints <= c.MediumPoints {
		return fmt.Errorf("scoring: base points must be positive and strictly increasing (easy=%d medium=%d hard=%d)",
			c.EasyPoints, c.MediumPoints, c.HardPoints)
	}
	if c.StreakStepPercent < 0 {
		return fmt.Errorf("scoring: streak step must not be negative, got %d", c.StreakStepPercent)
	}
	if c.MaxMultiplierPercent < 100 {
		return fmt.Errorf("scoring: max multiplier must be at least 100%%, got %d", c.MaxMultiplierPercent)
	}
	return nil
}

// Calculator is the pure scoring function bound to a Config.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Score returns the points awarded and the streak after this answer.
func (c *Calculator) Score(correct bool, difficulty domain.Difficulty, streakBefore int) (points, streakAfter int) {
	if !correct {
		return 0, 0
	}
	if streakBefore < 0 {
		streakBefore = 0
	}
	streakAfter = streakBefore + 1
	return c.Base(difficulty) * c.MultiplierPercent(streakAfter) / 100, streakAfter
}

// Base returns the unmultiplied points for a difficulty; unknown values score as easy.
func (c *Calculator) Base(difficulty domain.Difficulty) int {
	switch difficulty {
	case domain.DifficultyHard:
		return c.cfg.HardPoints
	case domain.DifficultyMedium:
		return c.cfg.MediumPoints
	default:
		return c.cfg.EasyPoints
	}
}

// MultiplierPercent is non-decreasing in streak and capped at MaxMultiplierPercent.
func (c *Calculator) MultiplierPercent(streak int) int {
	if streak <= 1 {
		return 100
	}
	m := 100 + c.cfg.StreakStepPercent*(streak-1)
	if m > c.cfg.MaxMultiplierPercent {
		return c.cfg.MaxMultiplierPercent
	}
	return m
}
