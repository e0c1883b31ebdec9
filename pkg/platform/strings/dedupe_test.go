package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, nil},
		{"empty", []string{}, []string{}},
		{"broker list with spaces", []string{"k1:9092", " k2:9092 "}, []string{"k1:9092", "k2:9092"}},
		{"repeats keep first position", []string{"b", "a", "b"}, []string{"b", "a"}},
		{"blank entries dropped", []string{"", "  ", "a"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}
