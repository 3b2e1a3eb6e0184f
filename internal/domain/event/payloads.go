package event

// CodeLoadError is the stable machine-readable code attached to
// REMOTE_LOAD_FAILED payloads. Dashboards and alerting match on it.
const CodeLoadError = "LOAD_ERROR"

// RemoteLoading is emitted before each load attempt. Attempt is 1-based.
type RemoteLoading struct {
	RemoteName string `json:"remoteName"`
	Attempt    int    `json:"attempt"`
}

// RemoteLoaded is emitted once a remote's load function has succeeded.
// Attempts is the total number of attempts it took, including the
// successful one.
type RemoteLoaded struct {
	RemoteName string `json:"remoteName"`
	Attempts   int    `json:"attempts"`
}

func (p RemoteLoaded) RoutingKey() string {
	return "shell.v1.remote.loaded"
}

// RemoteRetrying is emitted after a failed attempt when the loader still has
// retry budget left. DelayMS is the backoff delay before NextAttempt runs.
type RemoteRetrying struct {
	RemoteName  string `json:"remoteName"`
	Attempt     int    `json:"attempt"`
	NextAttempt int    `json:"nextAttempt"`
	DelayMS     int64  `json:"delayMs"`
	Error       string `json:"error"`
}

// RemoteLoadFailed is emitted when the loader gives up on a remote.
// Retryable reports whether a manual retry could still succeed, which is
// false only when the loader was closed.
type RemoteLoadFailed struct {
	RemoteName string `json:"remoteName"`
	Error      string `json:"error"`
	ErrorCode  string `json:"errorCode"`
	Attempts   int    `json:"attempts"`
	Retryable  bool   `json:"retryable"`
}

func (p RemoteLoadFailed) RoutingKey() string {
	return "shell.v1.remote.load_failed"
}

// AuthLogin carries the newly established session.
type AuthLogin struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func (p AuthLogin) RoutingKey() string {
	return "shell.v1.auth.login"
}

// AuthLogout carries the session being torn down.
type AuthLogout struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

func (p AuthLogout) RoutingKey() string {
	return "shell.v1.auth.logout"
}

// AuthExpired fires when a session token passes its expiry while still active.
type AuthExpired struct {
	UserID    string `json:"userId"`
	ExpiredAt int64  `json:"expiredAt"`
}

// RegistryUpdated announces a change to the remote module registry.
type RegistryUpdated struct {
	Path    string   `json:"path,omitempty"`
	Remotes []string `json:"remotes"`
}

func (p RegistryUpdated) RoutingKey() string {
	return "shell.v1.registry.updated"
}

// ShellReady is emitted exactly once per run, after the initial LoadAll pass
// settles. Failed carries the names of remotes that never came up.
type ShellReady struct {
	Loaded []string `json:"loaded"`
	Failed []string `json:"failed,omitempty"`
}

func (p ShellReady) RoutingKey() string {
	return "shell.v1.shell.ready"
}
