package secrets

import (
	"context"
	"fmt"
	"os"
	"time"
)

const EnvVarStoreProvider = "envVar"

// envStore resolves a credential by reading the named environment variable
// directly; key is the variable name itself.
type envStore struct{}

// NewEnvVarStore returns a Store backed by the process environment. Write is
// unsupported: a daemon cannot durably set its own environment for future
// restarts.
func NewEnvVarStore() Store { return envStore{} }

func (envStore) Get(key string, ctx context.Context) (*Credential, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, fmt.Errorf("secrets: environment variable %q is not set", key)
	}
	return &Credential{Value: []byte(v), LastUpdated: time.Now()}, nil
}

func (envStore) Write(key string, credential *Credential, ctx context.Context) error {
	return fmt.Errorf("secrets: the %s provider does not support writing credentials", EnvVarStoreProvider)
}

func (envStore) Provider() string { return EnvVarStoreProvider }
