package remote

import (
	"fmt"

	"availsync/internal/types"

	"github.com/jmespath/go-jmespath"
)

// Fields are JMESPath expressions locating values in backend responses.
// Empty entries fall back to DefaultFields.
type Fields struct {
	Success      string `yaml:"success" toml:"success"`
	IsAvailable  string `yaml:"is_available" toml:"is_available"`
	CooldownMs   string `yaml:"cooldown_ms" toml:"cooldown_ms"`
	Idempotent   string `yaml:"idempotent" toml:"idempotent"`
	ErrorCode    string `yaml:"error_code" toml:"error_code"`
	ErrorMessage string `yaml:"error_message" toml:"error_message"`
}

var DefaultFields = Fields{
	Success:      "success",
	IsAvailable:  "not_null(data.isAvailable, isAvailable)",
	CooldownMs:   "not_null(data.cooldownMs, cooldownMs)",
	Idempotent:   "not_null(data.idempotent, idempotent)",
	ErrorCode:    "not_null(error.code, code)",
	ErrorMessage: "not_null(error.message, message)",
}

type compiledFields struct {
	success, isAvailable, cooldownMs, idempotent, errorCode, errorMessage *jmespath.JMESPath
}

func compileFields(f Fields) (*compiledFields, error) {
	pick := func(expr, def string) (*jmespath.JMESPath, error) {
		if expr == "" {
			expr = def
		}
		jp, err := jmespath.Compile(expr)
		if err != nil {
			return nil, types.Err(types.ErrInvalidConfig, err, "jmespath %q", expr)
		}
		return jp, nil
	}
	var (
		c   compiledFields
		err error
	)
	if c.success, err = pick(f.Success, DefaultFields.Success); err != nil {
		return nil, err
	}
	if c.isAvailable, err = pick(f.IsAvailable, DefaultFields.IsAvailable); err != nil {
		return nil, err
	}
	if c.cooldownMs, err = pick(f.CooldownMs, DefaultFields.CooldownMs); err != nil {
		return nil, err
	}
	if c.idempotent, err = pick(f.Idempotent, DefaultFields.Idempotent); err != nil {
		return nil, err
	}
	if c.errorCode, err = pick(f.ErrorCode, DefaultFields.ErrorCode); err != nil {
		return nil, err
	}
	if c.errorMessage, err = pick(f.ErrorMessage, DefaultFields.ErrorMessage); err != nil {
		return nil, err
	}
	return &c, nil
}

// evalAny returns nil without error when the expression matches nothing.
func evalAny(jp *jmespath.JMESPath, payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	v, err := jp.Search(payload)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}
	return v, nil
}

func evalBool(jp *jmespath.JMESPath, payload any) (*bool, error) {
	v, err := evalAny(jp, payload)
	if err != nil || v == nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	return &b, nil
}

func evalInt(jp *jmespath.JMESPath, payload any) (int64, error) {
	v, err := evalAny(jp, payload)
	if err != nil || v == nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func evalString(jp *jmespath.JMESPath, payload any) string {
	v, err := evalAny(jp, payload)
	if err != nil || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
