package daemoncfg

import "errors"

var (
	// ErrInvalidSyntax is returned (wrapped) when the TOML document itself
	// cannot be parsed.
	ErrInvalidSyntax = errors.New("daemoncfg: invalid configuration syntax")
	// ErrInvalidFile is returned (wrapped) when the document parses but fails
	// validation (unknown repository reference, malformed trigger, etc).
	ErrInvalidFile = errors.New("daemoncfg: invalid configuration")
	// ErrIO is returned (wrapped) when the configuration file cannot be read.
	ErrIO = errors.New("daemoncfg: unable to read configuration file")
	// ErrEmptyConfig is returned when the document is empty.
	ErrEmptyConfig = errors.New("daemoncfg: configuration is empty")
	// ErrUnknownRepository is returned when a backup names a repository the
	// configuration does not define.
	ErrUnknownRepository = errors.New("daemoncfg: unknown repository")
)
