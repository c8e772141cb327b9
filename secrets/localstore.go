package secrets

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"oss.nandlabs.io/cirrusd/vfs"
)

const (
	LocalStoreProvider = "localStore"
)

// localStore will want the credential in a local file.
type localStore struct {
	credentials map[string]*Credential
	storeFile   string
	masterKey   string
	mutex       sync.RWMutex
}

func NewLocalStore(storeFile, masterKey string) (s Store, err error) {
	var decryptedContent []byte
	var credentials = make(map[string]*Credential)
	s = &localStore{
		credentials: credentials,
		storeFile:   storeFile,
		masterKey:   masterKey,
		mutex:       sync.RWMutex{},
	}

	f, openErr := vfs.GetManager().OpenRaw(storeFile)
	if openErr != nil {
		// No store file yet; a fresh, empty store is not an error.
		return s, nil
	}
	defer f.Close()

	info, err := f.Info()
	if err != nil || info.IsDir() {
		return s, nil
	}

	fileContent, err := f.AsBytes()
	if err != nil {
		return nil, err
	}
	decryptedContent, err = AesDecrypt(fileContent, []byte(masterKey))
	if err != nil {
		return nil, err
	}
	decoder := gob.NewDecoder(bytes.NewReader(decryptedContent))
	if err = decoder.Decode(&credentials); err != nil {
		return nil, err
	}
	return s, nil
}

func (ls *localStore) Get(key string, ctx context.Context) (cred *Credential, err error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()
	if v, ok := ls.credentials[key]; ok {
		cred = v
	} else {
		err = fmt.Errorf("Unable to find a credential with key %s", key)
	}

	return
}

func (ls *localStore) Write(key string, credential *Credential, ctx context.Context) (err error) {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()
	ls.credentials[key] = credential
	var b = &bytes.Buffer{}
	var encodedData []byte
	encoder := gob.NewEncoder(b)
	err = encoder.Encode(ls.credentials)
	if err == nil {
		encodedData, err = AesEncrypt([]byte(ls.masterKey), b.Bytes())
		if err == nil {
			var f vfs.VFile
			f, err = vfs.GetManager().CreateRaw(ls.storeFile)
			if err == nil {
				defer f.Close()
				_, err = f.Write(encodedData)
			}
		}
	}
	return
}

func (ls *localStore) Provider() string {
	return LocalStoreProvider
}
