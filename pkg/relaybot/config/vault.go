package config

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/term"
)

// VaultFile is the vault file name, kept next to relaybot.yaml.
const VaultFile = ".relaybot.vault"

var (
	ErrVaultLocked   = errors.New("vault is locked")
	ErrWrongPassword = errors.New("wrong vault password")
)

// kdfParams are the Argon2id parameters a vault was sealed with. They are
// stored in the file so they can be raised without breaking old vaults.
type kdfParams struct {
	Salt    []byte `json:"salt"`
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

func newKDFParams() (kdfParams, error) {
	p := kdfParams{Salt: make([]byte, 16), Time: 3, Memory: 64 * 1024, Threads: 4}
	if _, err := rand.Read(p.Salt); err != nil {
		return p, fmt.Errorf("generating salt: %w", err)
	}
	return p, nil
}

func (p kdfParams) key(password string) []byte {
	return argon2.IDKey([]byte(password), p.Salt, p.Time, p.Memory, p.Threads, 32)
}

// vaultFile is the on-disk layout: every secret in one AES-256-GCM sealed
// JSON object. []byte fields are base64 in JSON.
type vaultFile struct {
	Version int       `json:"version"`
	KDF     kdfParams `json:"kdf"`
	Nonce   []byte    `json:"nonce"`
	Sealed  []byte    `json:"sealed"`
}

// Vault keeps relaybot secrets (API hash, bot token, session key, default
// session) in a password-protected local file. While unlocked the secrets
// live in memory; every change rewrites the file.
type Vault struct {
	path string

	mu      sync.RWMutex
	kdf     kdfParams
	key     []byte
	secrets map[string]string
}

// NewVault returns a locked vault backed by path.
func NewVault(path string) *Vault {
	return &Vault{path: path}
}

func (v *Vault) Path() string { return v.path }

func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key != nil
}

// Create writes an empty vault sealed with password and leaves it unlocked.
func (v *Vault) Create(password string) error {
	if password == "" {
		return errors.New("vault password must not be empty")
	}
	if v.Exists() {
		return fmt.Errorf("vault already exists at %s", v.path)
	}
	kdf, err := newKDFParams()
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.kdf, v.key, v.secrets = kdf, kdf.key(password), map[string]string{}
	return v.flush()
}

// Unlock reads the vault file and decrypts it with password.
func (v *Vault) Unlock(password string) error {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("reading vault: %w", err)
	}
	var f vaultFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing vault %s: %w", v.path, err)
	}

	key := f.KDF.key(password)
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}
	if len(f.Nonce) != aead.NonceSize() {
		return fmt.Errorf("vault %s is corrupt", v.path)
	}
	plain, err := aead.Open(nil, f.Nonce, f.Sealed, nil)
	if err != nil {
		return ErrWrongPassword
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return fmt.Errorf("vault %s is corrupt: %w", v.path, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.kdf, v.key, v.secrets = f.KDF, key, secrets
	return nil
}

// Lock drops the key and the decrypted secrets.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.key)
	clear(v.secrets)
	v.key, v.secrets = nil, nil
}

// Set stores value under name.
func (v *Vault) Set(name, value string) error {
	if name == "" {
		return errors.New("secret name must not be empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key == nil {
		return ErrVaultLocked
	}
	v.secrets[name] = value
	return v.flush()
}

// Get returns the secret stored under name, or "" if there is none.
func (v *Vault) Get(name string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.key == nil {
		return "", ErrVaultLocked
	}
	return v.secrets[name], nil
}

func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key == nil {
		return ErrVaultLocked
	}
	delete(v.secrets, name)
	return v.flush()
}

// Keys lists the stored secret names in order.
func (v *Vault) Keys() ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.key == nil {
		return nil, ErrVaultLocked
	}
	return slices.Sorted(maps.Keys(v.secrets)), nil
}

// ChangePassword reseals the vault under newPassword with a fresh salt.
func (v *Vault) ChangePassword(newPassword string) error {
	if newPassword == "" {
		return errors.New("vault password must not be empty")
	}
	kdf, err := newKDFParams()
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key == nil {
		return ErrVaultLocked
	}
	clear(v.key)
	v.kdf, v.key = kdf, kdf.key(newPassword)
	return v.flush()
}

// flush seals the secrets and rewrites the file. v.mu must be held.
func (v *Vault) flush() error {
	plain, err := json.Marshal(v.secrets)
	if err != nil {
		return err
	}
	aead, err := newAEAD(v.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	out, err := json.MarshalIndent(vaultFile{
		Version: 2,
		KDF:     v.kdf,
		Nonce:   nonce,
		Sealed:  aead.Seal(nil, nonce, plain, nil),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(v.path, out, 0o600); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}
	return nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ReadPassword prints prompt to stderr and reads a password, without echo
// when stdin is a terminal.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
