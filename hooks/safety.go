package hooks

import (
	"regexp"
	"strings"
)

// DenyRule pairs a compiled pattern with the reason reported on a match.
type DenyRule struct {
	Pattern *regexp.Regexp
	Reason  string
}

// Matches checks the rule against a command string. Privilege escalation
// prefixes are stripped before matching so "sudo rm -rf /" is treated the
// same as "rm -rf /".
func (r DenyRule) Matches(command string) bool {
	normalized := escalationPrefix.ReplaceAllString(strings.TrimSpace(command), "")
	return r.Pattern.MatchString(normalized)
}

var escalationPrefix = regexp.MustCompile(`^(sudo|doas|pkexec)\s+`)

// MustRule compiles a deny rule, panicking on an invalid pattern. Intended
// for package-level rule tables.
func MustRule(pattern, reason string) DenyRule {
	return DenyRule{Pattern: regexp.MustCompile(pattern), Reason: reason}
}

// DefaultDenyRules returns the built-in destructive-command deny-list:
// recursive deletion of root or home paths, piping untrusted downloads into a
// shell, raw-disk operations, fork bombs, and catastrophic permission changes.
func DefaultDenyRules() []DenyRule {
	return []DenyRule{
		MustRule(`rm\s+(-[a-zA-Z]*f[a-zA-Z]*\s+)*(/\s*$|/\s+|~\s*$|~\s+|\*)`,
			"blocked: recursive or forced deletion of root, home, or wildcard paths"),
		MustRule(`(curl|wget)[^|]*\|\s*(ba|z)?sh`,
			"blocked: piping downloaded content into a shell"),
		MustRule(`dd\s+.*of=/dev/`,
			"blocked: raw write to a block device"),
		MustRule(`mkfs\.\w+`,
			"blocked: filesystem formatting"),
		MustRule(`fdisk\s+/dev/`,
			"blocked: disk partitioning"),
		MustRule(`>\s*/dev/sd[a-z]`,
			"blocked: raw write to a disk device"),
		MustRule(`:\(\)\s*\{.*:\|:.*\}`,
			"blocked: fork bomb"),
		MustRule(`chmod\s+(-[a-zA-Z]*R[a-zA-Z]*\s+)*(777|a\+rwx)\s+/\s*$`,
			"blocked: recursive permission change on root"),
		MustRule(`chown\s+(-[a-zA-Z]*R[a-zA-Z]*\s+)+\S+\s+/\s*$`,
			"blocked: recursive ownership change on root"),
		MustRule(`>\s*/etc/(passwd|shadow|sudoers|hosts)`,
			"blocked: overwriting a critical system file"),
		MustRule(`truncate\s+.*(/etc/|/var/|/usr/)`,
			"blocked: truncating a system file"),
		MustRule(`:>\s*/etc/`,
			"blocked: truncating a file under /etc"),
		MustRule(`(?i)format\s+c:`,
			"blocked: formatting a system drive"),
	}
}
