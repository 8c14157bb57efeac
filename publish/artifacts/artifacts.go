package artifacts

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

const (
	artifactFormat  = "hh-sol-artifact-1"
	buildInfoDir    = "build-info"
	dbgSuffix       = ".dbg.json"
	linkPlaceholder = "__$"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrAmbiguous    = errors.New("artifact name is ambiguous")
	ErrNoBytecode   = errors.New("artifact has no creation bytecode")
	ErrUnlinked     = errors.New("artifact bytecode has unlinked libraries")
	ErrNoBuildInfo  = errors.New("artifact has no build info")
	ErrSolcMismatch = errors.New("compiler version mismatch")
)

type (
	Artifact struct {
		Format           string          `json:"_format"`
		ContractName     string          `json:"contractName"`
		SourceName       string          `json:"sourceName"`
		ABI              json.RawMessage `json:"abi"`
		Bytecode         string          `json:"bytecode"`
		DeployedBytecode string          `json:"deployedBytecode"`

		path string
	}

	BuildInfo struct {
		Format          string          `json:"_format"`
		ID              string          `json:"id"`
		SolcVersion     string          `json:"solcVersion"`
		SolcLongVersion string          `json:"solcLongVersion"`
		Input           json.RawMessage `json:"input"`
	}

	debugFile struct {
		Format    string `json:"_format"`
		BuildInfo string `json:"buildInfo"`
	}

	// Registry resolves compiled contracts from a Hardhat artifacts directory.
	Registry struct {
		fs   afero.Fs
		root string
		log  *zap.Logger
	}
)

func NewRegistry(fs afero.Fs, root string, log *zap.Logger) *Registry {
	return &Registry{fs: fs, root: root, log: log}
}

func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

func (a *Artifact) Path() string {
	return a.path
}

func (a *Artifact) ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse %s abi: %w", a.ContractName, err)
	}
	return parsed, nil
}

// CreationCode returns the decoded creation bytecode.
func (a *Artifact) CreationCode() ([]byte, error) {
	code := strings.TrimPrefix(strings.TrimSpace(a.Bytecode), "0x")
	if code == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoBytecode, a.FullyQualifiedName())
	}
	if strings.Contains(code, linkPlaceholder) {
		return nil, fmt.Errorf("%w: %s", ErrUnlinked, a.FullyQualifiedName())
	}
	b, err := hex.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("decode %s bytecode: %w", a.ContractName, err)
	}
	return b, nil
}

// EncodeConstructorArgs packs args against the constructor inputs of the artifact's ABI.
func (a *Artifact) EncodeConstructorArgs(args ...any) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	packed, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor: %w", a.ContractName, err)
	}
	return packed, nil
}

// Lookup accepts either a bare contract name or a fully qualified
// "<source>:<name>" identifier.
func (r *Registry) Lookup(name string) (*Artifact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNotFound)
	}
	source, contract := "", name
	if i := strings.LastIndex(name, ":"); i >= 0 {
		source, contract = name[:i], name[i+1:]
	}

	var matches []*Artifact
	err := afero.Walk(r.fs, r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == buildInfoDir {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != contract+".json" {
			return nil
		}
		a, err := r.read(path)
		if err != nil {
			r.log.Debug("skipping unreadable artifact", zap.String("path", path), zap.Error(err))
			return nil
		}
		if a.ContractName != contract || (source != "" && a.SourceName != source) {
			return nil
		}
		matches = append(matches, a)
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (no artifacts at %s)", ErrNotFound, name, r.root)
		}
		return nil, fmt.Errorf("walk artifacts: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	case 1:
		r.log.Debug("resolved artifact", zap.String("name", matches[0].FullyQualifiedName()), zap.String("path", matches[0].path))
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.FullyQualifiedName()
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %s matches %s", ErrAmbiguous, name, strings.Join(names, ", "))
	}
}

func (r *Registry) read(path string) (*Artifact, error) {
	blob, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if a.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	a.path = path
	return &a, nil
}

// BuildInfo follows the artifact's .dbg.json sidecar to its build-info file.
func (r *Registry) BuildInfo(a *Artifact) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(a.path, ".json") + dbgSuffix
	blob, err := afero.ReadFile(r.fs, dbgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoBuildInfo, a.ContractName, err)
	}
	var dbg debugFile
	if err := json.Unmarshal(blob, &dbg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoBuildInfo, a.ContractName)
	}

	infoPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))
	blob, err = afero.ReadFile(r.fs, infoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoBuildInfo, a.ContractName, err)
	}
	var info BuildInfo
	if err := json.Unmarshal(blob, &info); err != nil {
		return nil, fmt.Errorf("decode %s: %w", infoPath, err)
	}
	return &info, nil
}

// CheckCompiler reports ErrSolcMismatch when the artifact was not built with want.
func (r *Registry) CheckCompiler(a *Artifact, want string) error {
	info, err := r.BuildInfo(a)
	if err != nil {
		return err
	}
	have, expected := canonicalVersion(info.SolcVersion), canonicalVersion(want)
	if !semver.IsValid(have) || !semver.IsValid(expected) {
		return fmt.Errorf("%w: cannot compare %q with %q", ErrSolcMismatch, info.SolcVersion, want)
	}
	if semver.Compare(have, expected) != 0 {
		return fmt.Errorf("%w: %s built with %s, configured %s", ErrSolcMismatch, a.ContractName, info.SolcVersion, want)
	}
	return nil
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
