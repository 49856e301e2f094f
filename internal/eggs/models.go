// Package eggs implements the Egg Registry: loading, persisting, and
// looking up egg descriptors, the declarative templates that describe
// how to install, configure, and run one class of game server.
package eggs

// Parser identifies how a declared config file is rendered. Each egg
// config file is written by materializing a Find map (or, for the "file"
// parser, a literal scalar) through the template expander and then
// formatting the result according to Parser.
type Parser string

const (
	ParserProperties Parser = "properties" // key=value lines, Java .properties style
	ParserFile       Parser = "file"       // Content is written verbatim (after expansion)
	ParserYAML       Parser = "yaml"       // Find is rendered as a flat YAML document
)

// ConfigFile describes one file the installer/lifecycle materializes
// inside an instance directory before the server's first start.
type ConfigFile struct {
	Parser Parser `json:"parser"`

	// Find maps an output key to a template string for "properties" and
	// "yaml" parsers. For the "file" parser, Find is unused and Content
	// holds the literal (pre-expansion) file body instead.
	Find map[string]string `json:"find,omitempty"`

	// Content is the literal file body for the "file" parser.
	Content string `json:"content,omitempty"`
}

// StartupSettings configures how the lifecycle supervisor recognizes
// that a starting container has become ready.
type StartupSettings struct {
	// Done is the sentinel substring whose appearance in the log stream
	// promotes the instance from "starting" to "online". Empty means no
	// sentinel is configured; the supervisor falls back to a coarse
	// timer promotion.
	Done string `json:"done"`
}

// InstallScript describes the one-shot install container.
type InstallScript struct {
	// Script is the shell script body, written into the instance
	// directory and executed by Entrypoint inside Container.
	Script string `json:"script"`

	// Container is the image the install script runs in. may differ
	// from any of the egg's runtime docker_images.
	Container string `json:"container"`

	// Entrypoint is the command used to execute Script, eg "bash".
	Entrypoint string `json:"entrypoint"`
}

// Variable is one declared, user-configurable value an egg exposes.
// EnvVariable is both the environment variable name injected into the
// container and the placeholder key used by the template expander.
type Variable struct {
	Name         string `json:"name"`
	EnvVariable  string `json:"env_variable"`
	DefaultValue string `json:"default_value"`
	UserViewable bool   `json:"user_viewable"`
	UserEditable bool   `json:"user_editable"`

	// Rules is the pipe-separated validation DSL, eg "required|numeric|min:128".
	Rules string `json:"rules"`
}

// Config groups the egg's config-file and startup/stop declarations.
type Config struct {
	Files   map[string]ConfigFile `json:"files"`
	Startup StartupSettings       `json:"startup"`

	// Stop is the console command sent to the server before forcing
	// termination, eg "stop", "exit", or a "^"-prefixed signal request
	// such as "^C".
	Stop string `json:"stop"`
}

// Scripts groups the egg's install behavior.
type Scripts struct {
	Installation InstallScript `json:"installation"`
}

// Egg is the declarative template for a class of game server.
type Egg struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Author      string `json:"author"`

	// DockerImages maps a human label (eg "Java 17") to an image
	// reference. must have at least one entry.
	DockerImages map[string]string `json:"docker_images"`

	// Startup is the command template for the main container's
	// entrypoint, expanded against the instance before launch.
	Startup string `json:"startup"`

	ConfigBlock Config     `json:"config"`
	Scripts     Scripts    `json:"scripts"`
	Variables   []Variable `json:"variables"`
}

// Variable looks up a declared variable by its env_variable key.
func (e *Egg) Variable(envVariable string) (Variable, bool) {
	for _, v := range e.Variables {
		if v.EnvVariable == envVariable {
			return v, true
		}
	}
	return Variable{}, false
}
