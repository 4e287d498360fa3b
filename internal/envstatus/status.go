// Package envstatus defines the closed set of lifecycle states an
// EnvironmentInstance or ClusterInstance can report.
package envstatus

// Status is a compile-time enum over the lifecycle states an environment can
// report. The zero value is Unknown, the "no signal" state.
type Status int

const (
	Unknown Status = iota
	Created
	Booting
	Running
	Restarting
	Paused
)

var names = map[Status]string{
	Unknown:    "unknown",
	Created:    "created",
	Booting:    "booting",
	Running:    "running",
	Restarting: "restarting",
	Paused:     "paused",
}

var fromName = func() map[string]Status {
	m := make(map[string]Status, len(names))
	for s, n := range names {
		m[n] = s
	}
	return m
}()

// String renders the wire form used throughout the HTTP surface and logs.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return names[Unknown]
}

// Parse maps a runtime-reported string into the closed Status set. Unknown
// strings collapse to Unknown rather than erroring, matching the container
// driver's "unknown strings collapse to UNKNOWN" requirement.
func Parse(s string) Status {
	if st, ok := fromName[s]; ok {
		return st
	}
	return Unknown
}
