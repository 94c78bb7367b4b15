package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract in Hardhat artifact format.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	Bytecode     []byte
	// Path is the artifact file location.
	Path string
}

// FullyQualifiedName returns "<source>:<contract>", the form explorers expect.
func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

type artifactFile struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

// BuildInfo is the compiler input and version recorded by Hardhat for a compilation.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// Artifacts resolves contract names against a Hardhat artifacts directory.
type Artifacts struct {
	root  string
	cache map[string]*Artifact
}

// NewArtifacts returns a loader rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{root: dir, cache: make(map[string]*Artifact)}
}

// Load finds and parses the artifact for contract. The name may be fully qualified
// ("contracts/Voltage.sol:VoltageController") to disambiguate duplicates.
func (a *Artifacts) Load(contract string) (*Artifact, error) {
	if art, ok := a.cache[contract]; ok {
		return art, nil
	}
	path, err := a.locate(contract)
	if err != nil {
		return nil, err
	}
	art, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	a.cache[contract] = art
	return art, nil
}

func (a *Artifacts) locate(contract string) (string, error) {
	if source, name, ok := strings.Cut(contract, ":"); ok {
		path := filepath.Join(a.root, filepath.FromSlash(source), name+".json")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("artifact for %s: %w", contract, err)
		}
		return path, nil
	}

	want := contract + ".json"
	var matches []string
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == want {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan artifacts in %s: %w", a.root, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no artifact for contract %q under %s", contract, a.root)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("contract %q is ambiguous (%s); use the <source>:<name> form", contract, strings.Join(matches, ", "))
	}
}

func readArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var file artifactFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(file.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi in %s: %w", path, err)
	}
	if strings.Contains(file.Bytecode, "__$") {
		return nil, fmt.Errorf("artifact %s has unlinked library references", path)
	}
	code, err := hexutil.Decode(file.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode in %s: %w", path, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("artifact %s has no bytecode (abstract contract or interface?)", path)
	}

	return &Artifact{
		ContractName: file.ContractName,
		SourceName:   file.SourceName,
		ABI:          parsed,
		Bytecode:     code,
		Path:         path,
	}, nil
}

// BuildInfo reads the compiler input referenced by the artifact's .dbg.json file.
func (a *Artifact) BuildInfo() (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(a.Path, ".json") + ".dbg.json"
	raw, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, fmt.Errorf("read debug file: %w", err)
	}
	var dbg debugFile
	if err := json.Unmarshal(raw, &dbg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("%s does not reference build info", dbgPath)
	}

	infoPath := dbg.BuildInfo
	if !filepath.IsAbs(infoPath) {
		infoPath = filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(infoPath))
	}
	raw, err = os.ReadFile(infoPath)
	if err != nil {
		return nil, fmt.Errorf("read build info: %w", err)
	}
	var info BuildInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode build info %s: %w", infoPath, err)
	}
	if len(info.Input) == 0 || info.SolcLongVersion == "" {
		return nil, errors.New("build info is missing compiler input or version")
	}
	return &info, nil
}
