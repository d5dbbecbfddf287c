package engine

import (
	"sort"
	"strings"
)

// NameTable resolves informal agent names to agent ids for one task.
// Task-local; never shared across concurrent tasks.
type NameTable struct {
	// keys holds the lookup keys in sorted order so resolution is
	// deterministic when multiple keys could match.
	keys    []string
	targets map[string]string
}

// BuildNameTable indexes each agent under its lower-cased name, a
// whitespace-stripped variant, and the raw id. When two agents collide on a
// key, the first agent in list order wins.
func BuildNameTable(agents []AgentConfig) *NameTable {
	targets := make(map[string]string)
	add := func(key, agentID string) {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if _, exists := targets[key]; !exists {
			targets[key] = agentID
		}
	}

	for _, agent := range agents {
		add(agent.AgentName, agent.AgentID)
		add(strings.ReplaceAll(agent.AgentName, " ", ""), agent.AgentID)
		add(agent.AgentID, agent.AgentID)
	}

	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return &NameTable{keys: keys, targets: targets}
}

// Resolve maps a parsed name to an agent id using substring containment in
// either direction, tolerating partial or informal addressing. Returns ""
// when nothing matches. The first matching key in sorted order wins; the
// looseness is a documented heuristic, not a guarantee.
func (t *NameTable) Resolve(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, " ", ""))
	if name == "" {
		return ""
	}
	if id, ok := t.targets[name]; ok {
		return id
	}
	for _, key := range t.keys {
		stripped := strings.ReplaceAll(key, " ", "")
		if strings.Contains(stripped, name) || strings.Contains(name, stripped) {
			return t.targets[key]
		}
	}
	return ""
}

// ParseRequest scans a reply line by line for an "@Name: message" directive
// and resolves the target. Lines that resolve to the current agent or to no
// agent are skipped. Only the first resolvable directive is returned; a reply
// cannot hand off to two agents in one turn.
func ParseRequest(reply, currentAgentID string, table *NameTable) *AgentRequest {
	if table == nil {
		return nil
	}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "@") {
			continue
		}
		colon := strings.Index(line, ":")
		if colon <= 1 {
			continue
		}
		name := line[1:colon]
		message := strings.TrimSpace(line[colon+1:])
		if message == "" {
			continue
		}

		targetID := table.Resolve(name)
		if targetID == "" || targetID == currentAgentID {
			continue
		}
		return &AgentRequest{TargetAgentID: targetID, Message: message}
	}
	return nil
}
