package remote

import "strings"

// Shell constructs that are never allowed in an outbound command, no matter
// which component builds it. Commands are generated, not user supplied, so
// a rejection here is a programming error worth failing loudly on.
var forbiddenSequences = []string{";", "&", "|", "`", "$(", ">", "<("}

// allowedCommands is the fixed set of base commands the engine is permitted
// to run on a remote host. Anything else is rejected before dispatch.
var allowedCommands = map[string]bool{
	"cat":          true,
	"cp":           true,
	"df":           true,
	"docker":       true,
	"dpkg":         true,
	"du":           true,
	"echo":         true,
	"free":         true,
	"hostname":     true,
	"ls":           true,
	"mkdir":        true,
	"mongodump":    true,
	"mongorestore": true,
	"mysql":        true,
	"mysqladmin":   true,
	"mysqldump":    true,
	"pg_dump":      true,
	"pg_dumpall":   true,
	"pg_isready":   true,
	"psql":         true,
	"ps":           true,
	"redis-cli":    true,
	"rm":           true,
	"rpm":          true,
	"service":      true,
	"stat":         true,
	"systemctl":    true,
	"tar":          true,
	"test":         true,
	"uname":        true,
	"uptime":       true,
	"which":        true,
}

// ValidateCommand enforces the allow-list and metacharacter policy every
// component must pass before handing a command to a session.
func ValidateCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return &UnsafeCommandError{Command: command, Reason: "empty command"}
	}

	for _, seq := range forbiddenSequences {
		if strings.Contains(trimmed, seq) {
			return &UnsafeCommandError{Command: command, Reason: "shell metacharacter " + seq}
		}
	}

	base := baseCommand(trimmed)
	if !allowedCommands[base] {
		return &UnsafeCommandError{Command: command, Reason: "command not in allow-list: " + base}
	}

	return nil
}

func baseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}

	base := fields[0]
	if base == "sudo" {
		// Skip sudo and its flags (e.g. sudo -u postgres pg_dump ...).
		rest := fields[1:]
		for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
			if rest[0] == "-u" && len(rest) > 1 {
				rest = rest[2:]
				continue
			}
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return ""
		}
		base = rest[0]
	}

	// Strip any path prefix so /usr/bin/mysqldump matches mysqldump.
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}

	return base
}
