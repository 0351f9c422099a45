package cli

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// allowList maps hashed RCON command verbs to the verb itself. An empty list permits every command.
type allowList map[uint64]string

func newAllowList(verbs []string) allowList {
	set := make(allowList, len(verbs))
	for _, verb := range verbs {
		verb = strings.ToLower(strings.TrimSpace(verb))
		if verb == "" {
			continue
		}
		set[xxhash.Sum64String(verb)] = verb
	}

	return set
}

// permits reports whether the first word of command is allowed. Verbs compare case-insensitively.
func (l allowList) permits(command string) bool {
	if len(l) == 0 {
		return true
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}

	verb := strings.ToLower(fields[0])
	allowed, ok := l[xxhash.Sum64String(verb)]
	return ok && allowed == verb
}
