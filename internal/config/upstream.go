package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mcpgate/mcpgate/internal/proc"
)

// serversFileDoc mirrors the mcpServers JSON format used by MCP client
// applications:
//
//	{"mcpServers": {"name": {"command": "...", "args": [...], "env": {...}, "cwd": "..."}}}
type serversFileDoc struct {
	MCPServers map[string]serversFileEntry `json:"mcpServers"`
}

type serversFileEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	Cwd     string            `json:"cwd"`
}

// ResolveCommand produces the subprocess command spec from the upstream
// configuration. For servers_file mode it reads the named entry from the
// mcpServers JSON file; for inline mode it uses command/args directly.
// Extra environment variables are appended to the parent environment, with
// the upstream env map applied first and the servers file entry env on top.
func (u *UpstreamConfig) ResolveCommand() (proc.Command, error) {
	if u.ServersFile == "" {
		if u.Command == "" {
			return proc.Command{}, fmt.Errorf("upstream: no command configured")
		}
		return proc.Command{
			Path: u.Command,
			Args: u.Args,
			Dir:  u.Cwd,
			Env:  buildEnv(u.Env, nil),
		}, nil
	}

	data, err := os.ReadFile(u.ServersFile)
	if err != nil {
		return proc.Command{}, fmt.Errorf("upstream: read servers file: %w", err)
	}

	var doc serversFileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return proc.Command{}, fmt.Errorf("upstream: parse servers file %s: %w", u.ServersFile, err)
	}

	entry, ok := doc.MCPServers[u.ServerName]
	if !ok {
		names := make([]string, 0, len(doc.MCPServers))
		for name := range doc.MCPServers {
			names = append(names, name)
		}
		sort.Strings(names)
		return proc.Command{}, fmt.Errorf("upstream: server %q not found in %s (available: %v)",
			u.ServerName, u.ServersFile, names)
	}
	if entry.Command == "" {
		return proc.Command{}, fmt.Errorf("upstream: server %q in %s has no command", u.ServerName, u.ServersFile)
	}

	cwd := entry.Cwd
	if cwd == "" {
		cwd = u.Cwd
	}

	return proc.Command{
		Path: entry.Command,
		Args: entry.Args,
		Dir:  cwd,
		Env:  buildEnv(u.Env, entry.Env),
	}, nil
}

// buildEnv appends the override maps to the parent environment in order.
// Keys within each map are emitted in sorted order for determinism.
func buildEnv(overrides ...map[string]string) []string {
	env := os.Environ()
	for _, m := range overrides {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+m[k])
		}
	}
	return env
}
