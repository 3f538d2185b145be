package tutor

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestZeroConfigFillsStructure(t *testing.T) {
	cfg, err := Config{}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	d := DefaultConfig()
	if !reflect.DeepEqual(cfg.Review, d.Review) {
		t.Errorf("Review = %+v, want %+v", cfg.Review, d.Review)
	}
	if cfg.Selection != d.Selection {
		t.Errorf("Selection = %+v, want %+v", cfg.Selection, d.Selection)
	}
	if cfg.Scoring.Difficulty != d.Scoring.Difficulty {
		t.Errorf("Difficulty = %+v, want %+v", cfg.Scoring.Difficulty, d.Scoring.Difficulty)
	}
	// Weights are never defaulted.
	if cfg.Scoring.SuppressConstant != 0 || cfg.Scoring.FitWeight != 0 {
		t.Errorf("weights defaulted: %+v", cfg.Scoring)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative suppress constant", func(c *Config) { c.Scoring.SuppressConstant = -1 }},
		{"negative boost constant", func(c *Config) { c.Scoring.BoostConstant = -0.5 }},
		{"threshold above one", func(c *Config) { c.Scoring.SimilarityThreshold = 1.2 }},
		{"negative temperature", func(c *Config) { c.Selection.Temperature = -0.5 }},
		{"infinite temperature", func(c *Config) { c.Selection.Temperature = math.Inf(1) }},
		{"ability bounds inverted", func(c *Config) { c.Ability.Min, c.Ability.Max = 5, 1 }},
		{"initial ability outside", func(c *Config) { c.Ability.Initial = 7 }},
		{"variance floor zero", func(c *Config) { c.Ability.VarianceMin, c.Ability.VarianceMax = 0, 2 }},
		{"step bounds inverted", func(c *Config) { c.Ability.StepMin, c.Ability.StepMax = 0.6, 0.5 }},
		{"unknown model", func(c *Config) { c.Ability.Model = AbilityModel(3) }},
		{"descending intervals", func(c *Config) { c.Review.IntervalsDays = []int{21, 7, 3, 1} }},
		{"easiness floor below one", func(c *Config) { c.Review.EasinessFloor = 0.9 }},
		{"negative max interval", func(c *Config) { c.Review.MaxIntervalDays = -1 }},
		{"unknown strategy", func(c *Config) { c.Selection.Strategy = Strategy(9) }},
		{"default difficulty outside scale", func(c *Config) { c.Scoring.Difficulty.Default = 9 }},
		{"learning rate above one", func(c *Config) { c.Value.LearningRate = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if _, err := NewEngine(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewEngine() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDifficultyOf(t *testing.T) {
	scale := DifficultyScale{Min: 1, Max: 5, Default: 3}
	tests := []struct{ in, want int }{
		{0, 3}, {1, 1}, {5, 5}, {6, 3}, {-2, 3},
	}
	for _, tt := range tests {
		if got := scale.difficultyOf(tt.in); got != tt.want {
			t.Errorf("difficultyOf(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
