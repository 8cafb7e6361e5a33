package instance

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasedirFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "separate flag and value",
			args: []string{"host", "serve", "--basedir", "/srv/instance1"},
			want: "/srv/instance1",
		},
		{
			name: "equals form",
			args: []string{"host", "--basedir=/srv/instance2", "serve"},
			want: "/srv/instance2",
		},
		{
			name: "flag without value at end",
			args: []string{"host", "--basedir"},
			want: "",
		},
		{
			name: "no flag",
			args: []string{"host", "serve"},
			want: "",
		},
		{
			name: "first occurrence wins",
			args: []string{"host", "--basedir=/first", "--basedir=/second"},
			want: "/first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, basedirFromArgs(tt.args))
		})
	}
}

func TestDeriveResolutionOrder(t *testing.T) {
	restore := func() {
		osArgs = func() []string { return os.Args }
		osGetenv = os.Getenv
		osUserHomeDir = os.UserHomeDir
		osStat = os.Stat
	}
	defer restore()

	t.Run("argv beats environment", func(t *testing.T) {
		defer restore()
		osArgs = func() []string { return []string{"host", "--basedir=/from/args"} }
		osGetenv = func(string) string { return "/from/env" }

		assert.Equal(t, Identity("/from/args"), Derive())
	})

	t.Run("environment beats default dir", func(t *testing.T) {
		defer restore()
		osArgs = func() []string { return []string{"host"} }
		osGetenv = func(key string) string {
			if key == basedirEnvVar {
				return "/from/env"
			}
			return ""
		}

		assert.Equal(t, Identity("/from/env"), Derive())
	})

	t.Run("default dir when it exists", func(t *testing.T) {
		defer restore()
		osArgs = func() []string { return []string{"host"} }
		osGetenv = func(string) string { return "" }
		osUserHomeDir = func() (string, error) { return "/home/user", nil }
		osStat = func(path string) (os.FileInfo, error) {
			if path == "/home/user/.octoprint" {
				return nil, nil
			}
			return nil, os.ErrNotExist
		}

		assert.Equal(t, Identity("/home/user/.octoprint"), Derive())
	})

	t.Run("empty when nothing applies", func(t *testing.T) {
		defer restore()
		osArgs = func() []string { return []string{"host"} }
		osGetenv = func(string) string { return "" }
		osUserHomeDir = func() (string, error) { return "", errors.New("no home") }

		assert.Equal(t, Identity(""), Derive())
	})
}

func TestDeriveIsStable(t *testing.T) {
	defer func() { osArgs = func() []string { return os.Args } }()
	osArgs = func() []string { return []string{"host", "--basedir=/srv/a"} }

	assert.Equal(t, Derive(), Derive())
}
