package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

type questionFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// ParseQuestions decodes a YAML question bank and validates every entry.
func ParseQuestions(data []byte) ([]domain.Question, error) {
	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	for _, q := range f.Questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Questions, nil
}

// LoadQuestionFile reads and parses a YAML question bank from disk.
func LoadQuestionFile(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseQuestions(data)
}
