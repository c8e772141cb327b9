package daemoncfg

// ConfigReload is published whenever the configuration store has a new,
// successfully-validated configuration: at startup (for components that only
// need to subscribe once) and after every successful file re-parse.
type ConfigReload struct {
	Config *Config
}
