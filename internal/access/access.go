// Package access renders an environment's access template: a string
// containing {{ip}} and per-port placeholders like {{22}} substituted with
// the environment's discovered IP and published ports.
package access

import (
	"strconv"
	"strings"
)

// PortPair maps one internal (container/VM-facing) port to the host-visible
// published port it was allocated.
type PortPair struct {
	Internal  int
	Published int
}

// Render substitutes {{ip}} with ip (or "unknown" if empty) and, for each
// pair, the literal token {{<Internal>}} with str(Published). Placeholders
// naming a port not present in pairs are left untouched.
func Render(template string, ip string, pairs []PortPair) string {
	displayIP := ip
	if displayIP == "" {
		displayIP = "unknown"
	}
	out := strings.ReplaceAll(template, "{{ip}}", displayIP)
	for _, pair := range pairs {
		placeholder := "{{" + strconv.Itoa(pair.Internal) + "}}"
		out = strings.ReplaceAll(out, placeholder, strconv.Itoa(pair.Published))
	}
	return out
}
