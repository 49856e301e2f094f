// Package instance implements the Config Store: the per-server
// configuration record (egg selection, port, resource plan, variable
// values) and its atomic on-disk persistence under configs/<id>.json.
package instance

import "github.com/pyrohost/pyro-node-agent/internal/eggs"

// Plan is the resource allocation an instance is constrained to. RAM is
// whole GiB: §4.4 derives SERVER_MEMORY (MiB) as ram x 1024 and §4.7
// derives the container memory limit as ram x 1 GiB.
type Plan struct {
	RAM  int `json:"ram"`  // GiB
	CPU  int `json:"cpu"`  // whole cores
	Disk int `json:"disk"` // GiB
}

// Status mirrors the lifecycle supervisor's state machine (§4.7). it is
// persisted alongside the config so a restart of the node agent can
// report the last known status before reconciliation confirms it.
type Status string

const (
	StatusAbsent        Status = "absent"
	StatusOffline       Status = "offline"
	StatusInstalling    Status = "installing"
	StatusInstallFailed Status = "install_failed"
	StatusStarting      Status = "starting"
	StatusOnline        Status = "online"
	StatusStopping      Status = "stopping"
	StatusError         Status = "error"
)

// Config is the full configuration record for one server instance.
type Config struct {
	ID   string `json:"id"`
	Egg  string `json:"egg_id"`
	Port int    `json:"port"`
	Plan Plan   `json:"plan"`

	// Location identifies the node/region this instance is pinned to,
	// injected into the runtime environment as P_SERVER_LOCATION (§4.7
	// step 3).
	Location string `json:"location"`

	// Name is the operator-facing display name for this instance.
	Name string `json:"name"`

	// Game identifies the instance's game family (eg "minecraft-java"),
	// driving the Image Resolver's special-case dispatch (§4.5) separately
	// from the egg's own id.
	Game string `json:"game"`

	// Variables holds the user-supplied values keyed by the egg
	// variable's env_variable name. unset keys fall back to the egg's
	// declared default at validation and expansion time.
	Variables map[string]string `json:"variables"`

	Status Status `json:"status"`

	// eggSnapshot is the egg descriptor as it existed at the last
	// successful validation, cached so template expansion and startup
	// command construction don't depend on the egg still existing in the
	// registry under the same shape. not persisted with its own field
	// name; see Store.hydrate.
	eggSnapshot *eggs.Egg
}

// EggDescriptor returns the cached egg descriptor associated with this
// config. the store populates this on Create, Update, and when Open
// loads a config from disk; it is nil if the egg could not be found.
func (c *Config) EggDescriptor() *eggs.Egg { return c.eggSnapshot }
