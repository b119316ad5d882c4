package bridge

import "fmt"

// defaultTopicPrefix is used when the config leaves topic_prefix empty.
const defaultTopicPrefix = "workbench"

// Topics builds bridge topic names for one agent. Using these helpers
// keeps topic naming consistent between the agent and whatever
// supervisor tooling subscribes on the other side.
type Topics struct {
	Prefix   string
	ClientID string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return defaultTopicPrefix
	}
	return t.Prefix
}

// AgentStatus returns the retained online/offline status topic.
//
// Example: workbench/agent/bench-03/status
func (t Topics) AgentStatus() string {
	return fmt.Sprintf("%s/agent/%s/status", t.prefix(), t.ClientID)
}

// SessionState returns the retained session snapshot topic.
//
// Example: workbench/agent/bench-03/session
func (t Topics) SessionState() string {
	return fmt.Sprintf("%s/agent/%s/session", t.prefix(), t.ClientID)
}

// AuthEvent returns the topic for auth lifecycle events.
//
// Example: workbench/agent/bench-03/event
func (t Topics) AuthEvent() string {
	return fmt.Sprintf("%s/agent/%s/event", t.prefix(), t.ClientID)
}

// Command returns the inbound command topic for this agent.
//
// Example: workbench/agent/bench-03/command
func (t Topics) Command() string {
	return fmt.Sprintf("%s/agent/%s/command", t.prefix(), t.ClientID)
}

// AllAgentSessions returns a pattern matching every agent's session topic.
//
// Pattern: workbench/agent/+/session
func (t Topics) AllAgentSessions() string {
	return fmt.Sprintf("%s/agent/+/session", t.prefix())
}
