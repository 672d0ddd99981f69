package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"
)

// Options carries the persistent flags shared by every command.
type Options struct {
	// Dir holds the graph definitions and, by default, tools.yaml.
	Dir            string
	LogLevel       string
	RedisURL       string
	RedisPrefix    string
	StoreDir       string
	EncryptionKey  string
	MaskFields     []string
	RecursionLimit int
	Timeout        time.Duration
	ToolsPath      string
}

// DefaultStoreDir is where runs are kept when no Redis URL is given.
const DefaultStoreDir = ".arbor/runs"

// toolsPath resolves the tools file, relative to Dir unless absolute.
func (o Options) toolsPath() string {
	path := o.ToolsPath
	if path == "" {
		path = "tools.yaml"
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.Dir, path)
}

func (o Options) storeDir() string {
	if o.StoreDir != "" {
		return o.StoreDir
	}
	return filepath.Join(o.Dir, DefaultStoreDir)
}

// encryptionKey decodes the key as hex, base64 or 32 raw bytes.
func (o Options) encryptionKey() ([]byte, error) {
	raw := o.EncryptionKey
	if raw == "" {
		return nil, nil
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes (raw, hex or base64)")
}
