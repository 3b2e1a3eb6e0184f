package model

import "strings"

//go:generate stringer -type=LoadState
type LoadState int16

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	StateIdle LoadState = iota + 1
	StateLoading
	StateRetrying
	StateLoaded
	StateFailed
	StateClosed
)

// Label is the wire form of the state ("idle", "loading", "loaded").
func (i LoadState) Label() string {
	return strings.ToLower(strings.TrimPrefix(i.String(), "State"))
}

// [REMOTE_MODULE] PARSED FEDERATION MANIFEST OF AN INDEPENDENTLY DEPLOYED MODULE
type RemoteModule struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Entry is the URL of the module's entry artifact.
	Entry    string            `json:"entry"`
	Exposes  []string          `json:"exposes,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RemoteStatus is the wire snapshot of a single loader, shaped for the
// devtools surface.
type RemoteStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	Version   string `json:"version,omitempty"`
	Entry     string `json:"entry,omitempty"`
}
