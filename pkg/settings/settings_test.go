package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s, err := MakeReader(true, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 22, s.SSH.Port)
	assert.Equal(t, 12, s.Startup.MaxAttempts)
	assert.Equal(t, 5*time.Second, s.Startup.Interval)
	assert.Equal(t, 30*time.Second, s.Exec.Timeout)
	assert.Equal(t, 24*time.Hour, s.Pricing.CacheTTL)
	assert.Equal(t, "https://checkip.amazonaws.com", s.PublicIP.URL)

	p := s.StartupPoll()
	assert.Equal(t, 60*time.Second, p.Duration()+p.Interval)
	tc := s.TypeChangePoll()
	assert.Equal(t, 5, tc.MaxAttempts)
	assert.Equal(t, 5*time.Second, tc.Interval)
}

func TestYamlAndEnv(t *testing.T) {
	t.Setenv("REMOTE_EXEC_TIMEOUT", "2m")
	yamlConfig := "ssh:\n  port: 2222\nstartup:\n  interval: 1s\n"
	s, err := MakeReader(true, strings.NewReader(yamlConfig), true)
	require.NoError(t, err)
	assert.Equal(t, 2222, s.SSH.Port)
	assert.Equal(t, time.Second, s.Startup.Interval)
	assert.Equal(t, 12, s.Startup.MaxAttempts)
	assert.Equal(t, 2*time.Minute, s.Exec.Timeout)
}

func TestEmptyYaml(t *testing.T) {
	s, err := MakeReader(true, strings.NewReader(""), false)
	require.NoError(t, err)
	assert.Equal(t, 22, s.SSH.Port)
}

func TestValidation(t *testing.T) {
	_, err := MakeReader(true, strings.NewReader("ssh:\n  port: 70000\n"), false)
	require.Error(t, err)
	_, err = MakeReader(true, strings.NewReader("typeChange:\n  maxAttempts: 0\n"), false)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, 22, s.SSH.Port)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("pricing:\n  cacheTTL: 1h\n"), 0600))
	s, err = Load(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.Pricing.CacheTTL)
}

func TestSSMPoll(t *testing.T) {
	s, err := MakeReader(true, nil, false)
	require.NoError(t, err)
	p := s.SSMPoll(30 * time.Second)
	assert.Equal(t, 15, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Interval)
	p = s.SSMPoll(10 * time.Minute)
	assert.Equal(t, 60, p.MaxAttempts)
	p = s.SSMPoll(0)
	assert.Equal(t, 15, p.MaxAttempts)
}
