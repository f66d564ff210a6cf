// Package creds resolves the API credentials for the remote store. They
// come either from an age-encrypted credential file or from environment
// variables, in that order.
package creds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"dedup-go/internal/config"
)

// Environment variables consulted when no credential file is usable.
const (
	EnvKeyID  = "DEDUP_KEY_ID"
	EnvAppKey = "DEDUP_APP_KEY"
)

// Credentials is an API key pair for the remote store.
type Credentials struct {
	KeyID  string `json:"key_id"`
	AppKey string `json:"app_key"`
}

// FromEnv reads credentials from the environment. The second return value
// reports whether both variables were set.
func FromEnv() (Credentials, bool) {
	c := Credentials{
		KeyID:  os.Getenv(EnvKeyID),
		AppKey: os.Getenv(EnvAppKey),
	}
	return c, c.KeyID != "" && c.AppKey != ""
}

// FileStore persists credentials encrypted with an X25519 age key pair.
// The public key is stored in plaintext; the private key is encrypted with
// the user's passphrase using age's scrypt-based passphrase encryption.
type FileStore struct {
	publicKeyPath  string
	privateKeyPath string
	credsPath      string
}

// NewFileStore creates a FileStore from configuration.
func NewFileStore(cfg config.CredentialsConfig) *FileStore {
	return &FileStore{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
		credsPath:      cfg.CredsPath,
	}
}

// Setup generates a new X25519 key pair, stores the public key in
// plaintext, and encrypts the private key with the passphrase.
func (s *FileStore) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(s.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privFile, err := os.OpenFile(s.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}
	return nil
}

// IsConfigured returns true if both key files exist.
func (s *FileStore) IsConfigured() bool {
	if _, err := os.Stat(s.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.privateKeyPath); err != nil {
		return false
	}
	return true
}

// HasStored returns true if an encrypted credential file exists.
func (s *FileStore) HasStored() bool {
	_, err := os.Stat(s.credsPath)
	return err == nil
}

// Save encrypts the credentials to the stored public key. No passphrase is
// needed to save, only to load.
func (s *FileStore) Save(c Credentials) error {
	recipient, err := s.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.credsPath), 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}
	f, err := os.OpenFile(s.credsPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating credentials file: %w", err)
	}
	defer f.Close()

	w, err := age.Encrypt(f, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing encrypted credentials: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted credentials: %w", err)
	}
	return nil
}

// Load decrypts the stored credentials using the passphrase-protected
// private key.
func (s *FileStore) Load(passphrase string) (Credentials, error) {
	identity, err := s.unlockIdentity(passphrase)
	if err != nil {
		return Credentials{}, err
	}

	encData, err := os.ReadFile(s.credsPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credentials file: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(encData), identity)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypting credentials: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading decrypted credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}
	return c, nil
}

// Resolve returns credentials, preferring the encrypted store over the
// environment. The environment pair is consulted only when no credential
// file exists or it cannot be unlocked.
func (s *FileStore) Resolve(passphrase string) (Credentials, error) {
	if s.HasStored() {
		c, err := s.Load(passphrase)
		if err == nil {
			return c, nil
		}
		if env, ok := FromEnv(); ok {
			return env, nil
		}
		return Credentials{}, fmt.Errorf("unlocking stored credentials: %w", err)
	}
	if c, ok := FromEnv(); ok {
		return c, nil
	}
	return Credentials{}, fmt.Errorf("no credentials: run 'auth login' or set %s and %s", EnvKeyID, EnvAppKey)
}

func (s *FileStore) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(s.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}
	return recipients[0], nil
}

func (s *FileStore) unlockIdentity(passphrase string) (age.Identity, error) {
	privData, err := os.ReadFile(s.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	scryptIdentity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(privData), scryptIdentity)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}
	keyData, err := io.ReadAll(decReader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in private key")
	}
	return identities[0], nil
}
