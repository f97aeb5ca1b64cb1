package question

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/victornm/livequiz/internal/domain"
)

// LoadFile reads a question file (YAML, JSON or TOML) shaped as
//
//	quizzes:
//	  default:
//	    - prompt: "2+2?"
//	      options: ["3", "4"]
//	      correct: 1
//	      deadline: 10s
func LoadFile(file string) (StaticBank, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read questions from file %s: %w", file, err)
	}

	var raw struct {
		Quizzes map[string][]domain.Question `mapstructure:"quizzes"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}

	if len(raw.Quizzes) == 0 {
		return nil, fmt.Errorf("no quizzes in %s", file)
	}

	bank := make(StaticBank, len(raw.Quizzes))
	for id, qs := range raw.Quizzes {
		for i := range qs {
			if err := Validate(&qs[i]); err != nil {
				return nil, fmt.Errorf("quiz %s: %w", id, err)
			}
		}
		bank[id] = qs
	}

	return bank, nil
}
