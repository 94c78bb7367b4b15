package chain

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const controllerABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
	{"name":"license","type":"address"},
	{"name":"fee","type":"uint256"},
	{"name":"enabled","type":"bool"},
	{"name":"label","type":"string"},
	{"name":"salt","type":"bytes32"},
	{"name":"decimals","type":"uint8"},
	{"name":"offset","type":"int64"}
]}]`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func setupArtifacts(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "contracts", "VoltageController.sol", "VoltageController.json"), `{
		"_format": "hh-sol-artifact-1",
		"contractName": "VoltageController",
		"sourceName": "contracts/VoltageController.sol",
		"abi": `+controllerABI+`,
		"bytecode": "0x6080604052"
	}`)
	writeFile(t, filepath.Join(root, "contracts", "VoltageController.sol", "VoltageController.dbg.json"),
		`{"_format":"hh-sol-dbg-1","buildInfo":"../../build-info/abc123.json"}`)
	writeFile(t, filepath.Join(root, "build-info", "abc123.json"), `{
		"solcVersion": "0.8.20",
		"solcLongVersion": "0.8.20+commit.a1b79de6",
		"input": {"language":"Solidity","sources":{}}
	}`)
	writeFile(t, filepath.Join(root, "contracts", "ILicense.sol", "ILicense.json"), `{
		"contractName": "ILicense",
		"sourceName": "contracts/ILicense.sol",
		"abi": [],
		"bytecode": "0x"
	}`)
	return root
}

func TestParsePrivateKey(t *testing.T) {
	id, err := ParsePrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", id.Hex())

	_, err = ParsePrivateKey("  ")
	assert.Error(t, err)
	_, err = ParsePrivateKey("not-a-key")
	assert.Error(t, err)
}

func TestArtifactsLoad(t *testing.T) {
	root := setupArtifacts(t)
	arts := NewArtifacts(root)

	art, err := arts.Load("VoltageController")
	require.NoError(t, err)
	assert.Equal(t, "contracts/VoltageController.sol:VoltageController", art.FullyQualifiedName())
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, art.Bytecode)
	assert.Len(t, art.ABI.Constructor.Inputs, 7)

	again, err := arts.Load("VoltageController")
	require.NoError(t, err)
	assert.Same(t, art, again)

	qualified, err := arts.Load("contracts/VoltageController.sol:VoltageController")
	require.NoError(t, err)
	assert.Equal(t, art.Path, qualified.Path)

	info, err := art.BuildInfo()
	require.NoError(t, err)
	assert.Equal(t, "0.8.20+commit.a1b79de6", info.SolcLongVersion)
	assert.JSONEq(t, `{"language":"Solidity","sources":{}}`, string(info.Input))
}

func TestArtifactsLoadErrors(t *testing.T) {
	root := setupArtifacts(t)
	arts := NewArtifacts(root)

	_, err := arts.Load("Missing")
	assert.ErrorContains(t, err, "no artifact")

	_, err = arts.Load("ILicense")
	assert.ErrorContains(t, err, "no bytecode")

	writeFile(t, filepath.Join(root, "contracts", "Other.sol", "VoltageController.json"), `{}`)
	_, err = NewArtifacts(root).Load("VoltageController")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestConvertArgs(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(controllerABI))
	require.NoError(t, err)

	values, err := ConvertArgs(parsed.Constructor.Inputs, []string{
		"0x00000000000000000000000000000000000000aa",
		"1000000000000000000000",
		"true",
		"Voltage",
		"0x" + strings.Repeat("11", 32),
		"18",
		"-5",
	})
	require.NoError(t, err)

	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	assert.Equal(t, common.HexToAddress("0xaa"), values[0])
	assert.Equal(t, 0, want.Cmp(values[1].(*big.Int)))
	assert.Equal(t, true, values[2])
	assert.Equal(t, "Voltage", values[3])
	var salt [32]byte
	for i := range salt {
		salt[i] = 0x11
	}
	assert.Equal(t, salt, values[4])
	assert.Equal(t, uint8(18), values[5])
	assert.Equal(t, int64(-5), values[6])

	_, err = parsed.Constructor.Inputs.Pack(values...)
	require.NoError(t, err)
}

func TestConvertArgsErrors(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(controllerABI))
	require.NoError(t, err)
	inputs := parsed.Constructor.Inputs

	valid := []string{"0x00000000000000000000000000000000000000aa", "1", "false", "", "0x" + strings.Repeat("00", 32), "0", "0"}

	cases := map[string]func(args []string) []string{
		"bad address":    func(a []string) []string { a[0] = "0x123"; return a },
		"negative uint":  func(a []string) []string { a[1] = "-1"; return a },
		"bad bool":       func(a []string) []string { a[2] = "yes please"; return a },
		"short bytes32":  func(a []string) []string { a[4] = "0x01"; return a },
		"uint8 overflow": func(a []string) []string { a[5] = "256"; return a },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			args := mutate(append([]string(nil), valid...))
			_, err := ConvertArgs(inputs, args)
			assert.Error(t, err)
		})
	}

	_, err = ConvertArgs(inputs, valid[:3])
	assert.ErrorContains(t, err, "takes 7 arguments")
}

func TestEncodeConstructorArgs(t *testing.T) {
	root := setupArtifacts(t)
	art, err := NewArtifacts(root).Load("VoltageController")
	require.NoError(t, err)

	encoded, err := EncodeConstructorArgs(art, []string{
		"0x00000000000000000000000000000000000000aa", "1", "true", "", "0x" + strings.Repeat("00", 32), "0", "0",
	})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(encoded, "0x"))
	assert.True(t, strings.HasPrefix(encoded, strings.Repeat("0", 62)+"aa"))
}

type chainIDBackend struct {
	Backend
	id *big.Int
}

func (b chainIDBackend) ChainID(context.Context) (*big.Int, error) {
	return b.id, nil
}

func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestNewDeployerWithoutLoggerStaysSilent(t *testing.T) {
	buf := captureDefaultLogger(t)
	id, err := ParsePrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	d, err := NewDeployer(context.Background(), chainIDBackend{id: big.NewInt(8453)}, DeployerOptions{
		Identity:  id,
		Artifacts: NewArtifacts(t.TempDir()),
		ChainID:   8453,
	})
	require.NoError(t, err)
	d.logger.Info("contract deployed", "contract", "LicenseModule")
	assert.Empty(t, buf.String())
}

func TestNewDeployerRejectsChainMismatch(t *testing.T) {
	id, err := ParsePrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	_, err = NewDeployer(context.Background(), chainIDBackend{id: big.NewInt(1)}, DeployerOptions{
		Identity:  id,
		Artifacts: NewArtifacts(t.TempDir()),
		ChainID:   8453,
	})
	assert.ErrorContains(t, err, "expected 8453")
}
