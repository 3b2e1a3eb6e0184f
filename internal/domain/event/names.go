package event

// Canonical event types understood by the shell core itself.
// Remotes are free to emit arbitrary type strings; these are merely the ones
// the core produces and reacts to.
const (
	// Remote module lifecycle.
	TypeRemoteLoading    = "REMOTE_LOADING"
	TypeRemoteLoaded     = "REMOTE_LOADED"
	TypeRemoteRetrying   = "REMOTE_RETRYING"
	TypeRemoteLoadFailed = "REMOTE_LOAD_FAILED"

	// Authentication session lifecycle.
	TypeAuthLogin   = "AUTH_LOGIN"
	TypeAuthLogout  = "AUTH_LOGOUT"
	TypeAuthExpired = "AUTH_EXPIRED"

	// Shell orchestration.
	TypeRegistryUpdated = "REGISTRY_UPDATED"
	TypeShellReady      = "SHELL_READY"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Well-known source labels. Sources stay free text; these are the ones the
// core stamps on its own emissions.
const (
	SourceLoader = "remote-loader"
	SourceShell  = "shell"
	SourceAuth   = "authstate"
	// SourceRelay marks events re-emitted from the broker. The exporter uses
	// it to keep relayed events from bouncing back out.
	SourceRelay = "relay"
)
