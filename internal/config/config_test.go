package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"availsync/internal/types"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
	dir string
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	for _, k := range []string{"AVAIL_BACKEND_URL", "AVAIL_AUTH_TOKEN", "AVAIL_LISTEN_PORT", "AVAIL_LOG_LEVEL", "AVAIL_DEAD_LETTER_ARN"} {
		s.T().Setenv(k, "")
	}
}

func (s *UnitTestSuite) write(name, body string) string {
	p := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(p, []byte(body), 0o600))
	return p
}

func (s *UnitTestSuite) TestYAML() {
	p := s.write("availsync.yaml", `
backend:
  url: https://dispatch.example.com/api/v1
  timeout: 20s
  fields:
    cooldown_ms: result.cooldown
toggle:
  cooldown: 3500ms
queue:
  max_retries: 5
  dead_letter_arn: arn:aws:sns:us-east-1:000000000000:dead
connectivity:
  debounce: 1s
listen:
  port: 9000
`)
	cfg, err := Load(p)
	s.Require().NoError(err)
	s.Equal("https://dispatch.example.com/api/v1", cfg.Backend.URL)
	s.Equal(20*time.Second, cfg.Backend.Timeout.Std())
	s.Equal("result.cooldown", cfg.Backend.Fields.CooldownMs)
	s.Equal(3500*time.Millisecond, cfg.Toggle.Cooldown.Std())
	s.Equal(5, cfg.Queue.MaxRetries)
	s.Equal(500, cfg.Queue.Capacity)
	s.Equal(time.Second, cfg.Connectivity.Debounce.Std())
	s.Equal(30*time.Second, cfg.Connectivity.BackoffMax.Std())
	s.Equal("127.0.0.1:9000", cfg.ListenAddr())
	s.Equal(cfg.Backend.URL, cfg.ProbeURL())
}

func (s *UnitTestSuite) TestTOML() {
	p := s.write("availsync.toml", `
[backend]
url = "https://dispatch.example.com"
timeout = "5s"

[queue]
pacing = "250ms"
capacity = 10

[connectivity]
probe_url = "https://dispatch.example.com/health"
`)
	cfg, err := Load(p)
	s.Require().NoError(err)
	s.Equal(5*time.Second, cfg.Backend.Timeout.Std())
	s.Equal(250*time.Millisecond, cfg.Queue.Pacing.Std())
	s.Equal(10, cfg.Queue.Capacity)
	s.Equal("https://dispatch.example.com/health", cfg.ProbeURL())
	s.Equal(types.DefaultMaxRetries, cfg.Queue.MaxRetries)
}

func (s *UnitTestSuite) TestMissingFileUsesDefaultsAndEnv() {
	s.T().Setenv("AVAIL_BACKEND_URL", "http://localhost:3000")
	s.T().Setenv("AVAIL_LISTEN_PORT", "8800")
	s.T().Setenv("AVAIL_LOG_LEVEL", "debug")
	s.T().Setenv("AVAIL_AUTH_TOKEN", "secret")

	cfg, err := Load(filepath.Join(s.dir, "absent.yaml"))
	s.Require().NoError(err)
	s.Equal("http://localhost:3000", cfg.Backend.URL)
	s.Equal("secret", cfg.Backend.AuthToken)
	s.Equal(8800, cfg.Listen.Port)
	s.Equal("debug", cfg.Log.Level)
	s.Equal(15*time.Second, cfg.Backend.Timeout.Std())
	s.Equal(2000*time.Millisecond, cfg.Toggle.Cooldown.Std())
	s.Equal(100*time.Millisecond, cfg.Queue.Pacing.Std())
	s.Equal(250*time.Millisecond, cfg.Queue.EnqueueDelay.Std())
}

func (s *UnitTestSuite) TestEnvBeatsFile() {
	p := s.write("c.yml", "backend:\n  url: http://file\n")
	s.T().Setenv("AVAIL_BACKEND_URL", "http://env")
	cfg, err := Load(p)
	s.Require().NoError(err)
	s.Equal("http://env", cfg.Backend.URL)
}

func (s *UnitTestSuite) TestValidation() {
	_, err := Load("")
	s.ErrorIs(err, types.ErrInvalidConfig)

	cfg := Default()
	cfg.Backend.URL = "http://x"
	s.NoError(cfg.Validate())

	bad := cfg
	bad.Backend.Timeout = Duration(500 * time.Millisecond)
	s.ErrorIs(bad.Validate(), types.ErrInvalidConfig)

	bad = cfg
	bad.Backend.Timeout = Duration(61 * time.Second)
	s.ErrorIs(bad.Validate(), types.ErrInvalidConfig)

	bad = cfg
	bad.Queue.Pacing = Duration(-time.Millisecond)
	s.ErrorIs(bad.Validate(), types.ErrInvalidConfig)

	bad = cfg
	bad.Queue.MaxRetries = -1
	s.ErrorIs(bad.Validate(), types.ErrInvalidConfig)

	s.T().Setenv("AVAIL_BACKEND_URL", "http://x")
	s.T().Setenv("AVAIL_LISTEN_PORT", "eighty")
	_, err = Load("")
	s.ErrorIs(err, types.ErrInvalidConfig)
}

func (s *UnitTestSuite) TestBadFiles() {
	_, err := Load(s.write("c.json", `{}`))
	s.ErrorIs(err, types.ErrInvalidConfig)

	_, err = Load(s.write("c.toml", "[backend\nurl="))
	s.ErrorIs(err, types.ErrInvalidConfig)

	_, err = Load(s.write("d.yaml", "backend:\n  timeout: soon\n"))
	s.ErrorIs(err, types.ErrInvalidConfig)
}
