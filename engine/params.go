package engine

import (
	"fmt"
	"io"

	"github.com/embeddkv/embeddkv/common"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Flags are the environment-wide open/create flags (spec.md §6 "Flags
// consumed").
type Flags struct {
	InMemory                bool
	ReadOnly                bool
	EnableTransactions      bool
	EnableRecovery          bool
	AutoRecovery            bool
	EnableDuplicateKeys     bool
	DisableMmap             bool
	DisableReclaimInternal  bool
	RecordNumber32          bool
	RecordNumber64          bool
}

// Params mirrors the teacher's Config/DefaultConfig pattern
// (`intellect4all-storage-engines/btree/btree.go`'s Config), generalized
// to the full parameter surface spec.md §6 lists.
type Params struct {
	PageSize        int
	CacheSize       int64 // bytes
	MaxDatabases    int
	KeySize         int
	KeyType         common.KeyType
	RecordSize      int
	KeyCompression  bool
	RecordCompression bool
	FileAccessMode  string

	Logger zerolog.Logger
}

// DefaultParams returns sensible defaults, the same role the teacher's
// DefaultConfig(dataDir) plays for BTree.
func DefaultParams() Params {
	return Params{
		PageSize:     16 * 1024,
		CacheSize:    64 * 1024 * 1024,
		MaxDatabases: 16,
		KeyType:      common.KeyTypeBinary,
		Logger:       zerolog.Nop(),
	}
}

// validate enforces spec.md §5 "Environment parameter validation"
// (SUPPLEMENTED FEATURES): page size must be a power of two and a
// multiple of 512; the descriptor table for max-databases must fit
// inside the header page payload.
func (p Params) validate() error {
	if p.PageSize <= 0 || p.PageSize%512 != 0 || p.PageSize&(p.PageSize-1) != 0 {
		return fmt.Errorf("%w: page size %d must be a power of two and a multiple of 512", common.ErrInvalidParameter, p.PageSize)
	}
	if p.MaxDatabases <= 0 {
		return fmt.Errorf("%w: max databases must be positive", common.ErrInvalidParameter)
	}
	needed := descriptorTableOffset + p.MaxDatabases*descriptorSlotSize
	if needed > p.PageSize {
		return fmt.Errorf("%w: max-databases %d needs %d bytes, page size is only %d", common.ErrInvalidParameter, p.MaxDatabases, needed, p.PageSize)
	}
	return nil
}

// yamlParams is the on-disk shape LoadParamsYAML parses, kept separate
// from Params so the zerolog.Logger field (not YAML-serializable)
// never has to round-trip.
type yamlParams struct {
	PageSize          int    `yaml:"page_size"`
	CacheSize         int64  `yaml:"cache_size"`
	MaxDatabases      int    `yaml:"max_databases"`
	KeySize           int    `yaml:"key_size"`
	KeyType           string `yaml:"key_type"`
	RecordSize        int    `yaml:"record_size"`
	KeyCompression    bool   `yaml:"key_compression"`
	RecordCompression bool   `yaml:"record_compression"`
	FileAccessMode    string `yaml:"file_access_mode"`
}

var keyTypeNames = map[string]common.KeyType{
	"binary": common.KeyTypeBinary,
	"uint32": common.KeyTypeUint32,
	"uint64": common.KeyTypeUint64,
	"real32": common.KeyTypeReal32,
	"real64": common.KeyTypeReal64,
	"custom": common.KeyTypeCustom,
}

// LoadParamsYAML reads environment parameters from a YAML document,
// layered over DefaultParams for any field it omits — the role
// yaml.v3 plays in the pack's own config loading (SPEC_FULL.md §3),
// applied here to environment parameters for the cmd/demo sample.
func LoadParamsYAML(r io.Reader) (Params, error) {
	params := DefaultParams()

	var y yamlParams
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&y); err != nil {
		if err == io.EOF {
			return params, nil
		}
		return Params{}, fmt.Errorf("decode params yaml: %w", err)
	}

	if y.PageSize != 0 {
		params.PageSize = y.PageSize
	}
	if y.CacheSize != 0 {
		params.CacheSize = y.CacheSize
	}
	if y.MaxDatabases != 0 {
		params.MaxDatabases = y.MaxDatabases
	}
	if y.KeySize != 0 {
		params.KeySize = y.KeySize
	}
	if y.KeyType != "" {
		kt, ok := keyTypeNames[y.KeyType]
		if !ok {
			return Params{}, fmt.Errorf("%w: unknown key_type %q", common.ErrInvalidParameter, y.KeyType)
		}
		params.KeyType = kt
	}
	if y.RecordSize != 0 {
		params.RecordSize = y.RecordSize
	}
	params.KeyCompression = y.KeyCompression
	params.RecordCompression = y.RecordCompression
	if y.FileAccessMode != "" {
		params.FileAccessMode = y.FileAccessMode
	}
	return params, nil
}

// DBFlags are per-database create/open flags layered under the
// environment's flags (spec.md §6 env_create_db/env_open_db).
type DBFlags struct {
	EnableDuplicateKeys bool
	RecordNumber32      bool
	RecordNumber64      bool
}
