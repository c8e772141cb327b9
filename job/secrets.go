package job

import (
	"context"
	"errors"
	"fmt"

	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/secrets"
)

// ErrKeyringUnsupported is returned when a configuration references the
// "keyring" secret backend, which the daemon core does not implement (it is
// an out-of-scope external collaborator per the interface boundary).
var ErrKeyringUnsupported = errors.New("job: keyring secret backend is not supported by this build")

// ErrNoFileStore is returned when a "file"-backed secret reference is used
// without a local secret store having been configured.
var ErrNoFileStore = errors.New("job: no local secret store configured for file-backed secret references")

// SecretResolver turns a daemoncfg.SecretRef into its plaintext value,
// dispatching to the appropriate secrets.Store backend through a
// secrets.Manager keyed by each backend's Provider() name.
type SecretResolver struct {
	manager      *secrets.Manager
	hasFileStore bool
}

// NewSecretResolver returns a resolver backed by the process environment and,
// optionally, a local encrypted secret store (nil to disable file-backed refs).
func NewSecretResolver(fileStore secrets.Store) *SecretResolver {
	manager := secrets.GetManager()
	manager.Register(secrets.NewEnvVarStore())
	if fileStore != nil {
		manager.Register(fileStore)
	}
	return &SecretResolver{manager: manager, hasFileStore: fileStore != nil}
}

// Resolve returns the plaintext value named by ref.
func (r *SecretResolver) Resolve(ctx context.Context, ref daemoncfg.SecretRef) (string, error) {
	switch ref.Kind() {
	case "env-var":
		store := r.manager.Store(secrets.EnvVarStoreProvider)
		cred, err := store.Get(ref.EnvVar, ctx)
		if err != nil {
			return "", fmt.Errorf("job: resolving env-var secret %q: %w", ref.EnvVar, err)
		}
		return cred.Str(), nil
	case "file":
		if !r.hasFileStore {
			return "", ErrNoFileStore
		}
		store := r.manager.Store(secrets.LocalStoreProvider)
		cred, err := store.Get(ref.FileKey, ctx)
		if err != nil {
			return "", fmt.Errorf("job: resolving file-backed secret %q: %w", ref.FileKey, err)
		}
		return cred.Str(), nil
	case "keyring":
		return "", ErrKeyringUnsupported
	default:
		return "", fmt.Errorf("job: secret reference has no recognized backend")
	}
}
