package session

import (
	"strings"
	"testing"
)

func TestPathsContainSessionName(t *testing.T) {
	name := "testsession"
	paths := []string{
		Dir(name),
		LockPath(name),
		CacheDBPath(name),
		CredentialsPath(name),
		LogPath(name),
	}
	for _, p := range paths {
		if !strings.Contains(p, name) {
			t.Errorf("path %q does not contain session name %q", p, name)
		}
	}
}

func TestConfigPathUnderBase(t *testing.T) {
	if !strings.HasPrefix(ConfigPath(), BaseDir()) {
		t.Errorf("ConfigPath %q not under BaseDir %q", ConfigPath(), BaseDir())
	}
}
