package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain", "Hello", false},
		{"at limit", strings.Repeat("a", MaxContentBytes), false},
		{"empty", "", true},
		{"whitespace only", "  \n\t", true},
		{"over limit", strings.Repeat("a", MaxContentBytes+1), true},
		{"invalid utf8", "abc\xff", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateModel(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"sonar", "sonar", false},
		{"with dashes", "sonar-reasoning-pro", false},
		{"empty", "", true},
		{"space", "sonar pro", true},
		{"newline", "sonar\n", true},
		{"too long", strings.Repeat("m", 129), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModel(tt.model)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
