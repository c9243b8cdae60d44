package security

import (
	"os"
	"strings"
)

// sensitiveEnvPrefixes are environment variable prefixes stripped from
// subprocess environments (shell capability, stdio provider transports)
// to keep host secrets out of model-driven processes.
var sensitiveEnvPrefixes = []string{
	"OPENAI_",
	"ANTHROPIC_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"SLACK_TOKEN",
	"SLACK_BOT_TOKEN",
	"DISCORD_TOKEN",
	"TELEGRAM_BOT_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"SMTP_PASSWORD",
	"STREAMEXEC_",
}

// sensitiveEnvExact are variable names stripped by exact match only, to
// avoid over-blocking names like DB_PORT that share a prefix.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"REDIS_PASSWORD":        {},
}

// SanitizedEnv returns a copy of os.Environ() with sensitive variables
// removed. extra entries (KEY=VALUE) are appended after filtering, so a
// provider spec can still inject the variables it explicitly declares.
func SanitizedEnv(extra ...string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env)+len(extra))

	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if isSensitiveEnvVar(key) {
			continue
		}
		result = append(result, entry)
	}

	return append(result, extra...)
}

// isSensitiveEnvVar reports whether the variable name matches a sensitive
// prefix or exact name.
func isSensitiveEnvVar(key string) bool {
	if _, ok := sensitiveEnvExact[key]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
