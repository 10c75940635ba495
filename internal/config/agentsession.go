package config

import (
	"github.com/haasonsaas/claudekit/internal/agentsession"
)

// SessionConfig maps the configured agent-session knobs onto
// agentsession.Config, leaving Process/Evaluator for the caller to
// supply (they depend on the subprocess command and the permission
// callback, neither of which this package owns).
func (c *Config) SessionConfig() agentsession.Config {
	return agentsession.Config{
		Process: agentsession.ProcessConfig{
			Command: c.AgentSession.Command,
		},
		Retry:            c.RetryConfig(),
		InterruptTimeout: c.AgentSession.InterruptTimeout,
		CloseTimeout:     c.AgentSession.CloseTimeout,
	}
}

// PermissionMode converts the configured string into the typed enum,
// defaulting to agentsession.ModeDefault for an unrecognized value
// (Validate should have already rejected those upstream).
func (c *Config) PermissionMode() agentsession.PermissionMode {
	switch agentsession.PermissionMode(c.AgentSession.PermissionMode) {
	case agentsession.ModeAcceptEdits, agentsession.ModeBypassPermissions, agentsession.ModePlan:
		return agentsession.PermissionMode(c.AgentSession.PermissionMode)
	default:
		return agentsession.ModeDefault
	}
}
