package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-d", "data.db", "-x", "1"},
			allowedFlags: []string{"-d", "--dsn"},
			want:         []string{"-d", "data.db"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--dsn=alt.db", "-x", "1"},
			allowedFlags: []string{"-d", "--dsn"},
			want:         []string{"--dsn=alt.db"},
		},
		{
			name:         "order preserved when both forms present",
			args:         []string{"--dsn=first.db", "-d", "second.db", "-x", "1"},
			allowedFlags: []string{"-d", "--dsn"},
			want:         []string{"--dsn=first.db", "-d", "second.db"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-d"},
			want:         []string{},
		},
		{
			name:         "flag without value at end kept as-is",
			args:         []string{"-d"},
			allowedFlags: []string{"-d"},
			want:         []string{"-d"},
		},
		{
			name:         "next dash token is not a value",
			args:         []string{"-d", "-notvalue"},
			allowedFlags: []string{"-d"},
			want:         []string{"-d"},
		},
		{
			name:         "equals form may carry a dash value",
			args:         []string{"--dsn=--weird.db"},
			allowedFlags: []string{"--dsn"},
			want:         []string{"--dsn=--weird.db"},
		},
		{
			name:         "multiple allowed flags kept",
			args:         []string{"-a", "localhost:8080", "-d", "data.db", "--other", "x"},
			allowedFlags: []string{"-d", "-a"},
			want:         []string{"-a", "localhost:8080", "-d", "data.db"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-d"},
			want:         []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterArgs(tc.args, tc.allowedFlags)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"datakeeper", "-c", "conf.json", "-d", "data.db"}
	assert.Equal(t, "conf.json", JsonConfigFlags())

	os.Args = []string{"datakeeper", "--config=alt.json"}
	assert.Equal(t, "alt.json", JsonConfigFlags())

	os.Args = []string{"datakeeper", "-d", "data.db"}
	assert.Equal(t, "", JsonConfigFlags())
}
