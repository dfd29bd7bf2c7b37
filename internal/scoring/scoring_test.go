package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

func TestScore(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	tests := []struct {
		name         string
		correct      bool
		difficulty   domain.Difficulty
		streakBefore int
		wantPoints   int
		wantStreak   int
	}{
		{name: "wrong answer resets streak", correct: false, difficulty: domain.DifficultyHard, streakBefore: 7, wantPoints: 0, wantStreak: 0},
		{name: "first correct easy", correct: true, difficulty: domain.DifficultyEasy, streakBefore: 0, wantPoints: 10, wantStreak: 1},
		{name: "second correct medium", correct: true, difficulty: domain.DifficultyMedium, streakBefore: 1, wantPoints: 22, wantStreak: 2},
		{name: "fifth correct hard", correct: true, difficulty: domain.DifficultyHard, streakBefore: 4, wantPoints: 42, wantStreak: 5},
		{name: "multiplier capped", correct: true, difficulty: domain.DifficultyHard, streakBefore: 40, wantPoints: 60, wantStreak: 41},
		{name: "negative streak treated as zero", correct: true, difficulty: domain.DifficultyEasy, streakBefore: -3, wantPoints: 10, wantStreak: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, streak := calc.Score(tt.correct, tt.difficulty, tt.streakBefore)
			assert.Equal(t, tt.wantPoints, points)
			assert.Equal(t, tt.wantStreak, streak)
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	calc := NewCalculator(DefaultConfig())
	difficulties := []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}

	for _, d := range difficulties {
		prev := 0
		for streak := 0; streak < 50; streak++ {
			points, _ := calc.Score(true, d, streak)
			require.GreaterOrEqualf(t, points, prev, "difficulty %s streak %d", d, streak)
			prev = points
		}
	}

	for streak := 0; streak < 50; streak++ {
		prev := 0
		for _, d := range difficulties {
			points, _ := calc.Score(true, d, streak)
			require.GreaterOrEqualf(t, points, prev, "difficulty %s streak %d", d, streak)
			prev = points
		}
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MediumPoints = cfg.EasyPoints
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxMultiplierPercent = 90
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.StreakStepPercent = -1
	assert.Error(t, cfg.Validate())
}
