package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dep2p/go-ctlplane/config"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "CTLPLANE_"

// 支持的环境变量（均带 CTLPLANE_ 前缀）
const (
	EnvConsolePort         = "CONSOLE_PORT"
	EnvConsoleMaxSessions  = "CONSOLE_MAX_SESSIONS"
	EnvConsoleIdleTimeout  = "CONSOLE_IDLE_TIMEOUT"
	EnvControlEndpoint     = "CONTROL_ENDPOINT"
	EnvControlAuthenticate = "CONTROL_AUTHENTICATE"
	EnvAuthEndpoint        = "AUTH_ENDPOINT"
	EnvAuthCredentials     = "AUTH_CREDENTIALS_FILE"
	EnvAuthCurveKeys       = "AUTH_CURVE_KEYS_FILE"
	EnvIntrospectAddr      = "INTROSPECT_ADDR"
	EnvLogFile             = "LOG_FILE"
)

// lookupFunc 与 os.LookupEnv 同签名，测试中注入
type lookupFunc func(key string) (string, bool)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，低于命令行参数。
// CTLPLANE_LOG_LEVEL / CTLPLANE_LOG_FORMAT 由日志包直接读取。
// 设置了 CTLPLANE_INTROSPECT_ADDR 时同时启用诊断服务。
func applyEnvOverrides(cfg *config.Config, lookup lookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvConsolePort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvConsolePort, err)
		}
		cfg.Console.Port = port
	}

	if v, ok := get(EnvConsoleMaxSessions); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvConsoleMaxSessions, err)
		}
		cfg.Console.MaxSessions = n
	}

	if v, ok := get(EnvConsoleIdleTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvConsoleIdleTimeout, err)
		}
		cfg.Console.IdleTimeout = config.Duration(d)
	}

	if v, ok := get(EnvControlEndpoint); ok {
		cfg.Control.Endpoint = v
	}

	if v, ok := get(EnvControlAuthenticate); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvControlAuthenticate, err)
		}
		cfg.Control.Authenticate = b
	}

	if v, ok := get(EnvAuthEndpoint); ok {
		cfg.Auth.Endpoint = v
	}
	if v, ok := get(EnvAuthCredentials); ok {
		cfg.Auth.CredentialsFile = v
	}
	if v, ok := get(EnvAuthCurveKeys); ok {
		cfg.Auth.CurveKeysFile = v
	}

	if v, ok := get(EnvIntrospectAddr); ok {
		cfg.Diagnostics.EnableIntrospect = true
		cfg.Diagnostics.IntrospectAddr = v
	}

	if v, ok := get(EnvLogFile); ok {
		cfg.Log.File = v
	}

	return nil
}
