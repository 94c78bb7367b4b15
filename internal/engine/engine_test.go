package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltage-labs/contractctl/internal/ledger"
)

type deployCall struct {
	Contract string
	Args     []string
}

// fakeDeployer hands out sequential addresses and can fail for chosen contracts.
type fakeDeployer struct {
	calls  []deployCall
	failOn map[string]error
}

func (f *fakeDeployer) Deploy(_ context.Context, contract string, args []string) (string, error) {
	f.calls = append(f.calls, deployCall{Contract: contract, Args: args})
	if err, ok := f.failOn[contract]; ok {
		return "", err
	}
	return fmt.Sprintf("0x%040d", len(f.calls)), nil
}

type fakeVerifier struct {
	calls  []string
	failOn map[string]error
}

func (f *fakeVerifier) Verify(_ context.Context, contract, address string, _ []string) error {
	f.calls = append(f.calls, contract+"@"+address)
	return f.failOn[contract]
}

type harness struct {
	backend  *ledger.MemoryBackend
	store    *ledger.Store
	deployer *fakeDeployer
	verifier *fakeVerifier
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend:  &ledger.MemoryBackend{},
		deployer: &fakeDeployer{failOn: map[string]error{}},
		verifier: &fakeVerifier{failOn: map[string]error{}},
	}
	store, err := ledger.NewStore(h.backend, nil)
	require.NoError(t, err)
	h.store = store

	orch, err := New(Options{Deployer: h.deployer, Verifier: h.verifier, Ledger: store})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) run(t *testing.T, steps []Step) (RunResult, error) {
	t.Helper()
	who := ledger.Initiator{Address: "0xdeployer", Network: "testnet"}
	state, err := h.store.Load(context.Background(), who)
	require.NoError(t, err)
	session, err := NewSession(who, state)
	require.NoError(t, err)
	_, result, err := h.orch.Run(context.Background(), session, steps)
	return result, err
}

func (h *harness) persisted(t *testing.T) *ledger.State {
	t.Helper()
	state := &ledger.State{}
	require.NoError(t, state.UnmarshalJSON(h.backend.Data))
	return state
}

func abcSteps() []Step {
	return []Step{
		{Name: "a", Contract: "A"},
		{Name: "b", Contract: "B"},
		{Name: "c", Contract: "C", DependsOn: []string{"a", "b"}, Args: func(deps map[string]string) ([]string, error) {
			return []string{deps["a"], deps["b"], "0x4200000000000000000000000000000000000006"}, nil
		}},
	}
}

func TestRunFreshThenResumeDeploysNothing(t *testing.T) {
	h := newHarness(t)

	result, err := h.run(t, abcSteps())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.Deployed())
	assert.Len(t, h.deployer.calls, 3)

	persisted := h.persisted(t)
	assert.Equal(t, []string{"a", "b", "c"}, persisted.Names())
	assert.Equal(t, "0xdeployer", persisted.Meta.Initiator)
	assert.False(t, persisted.Meta.CreatedAt.IsZero())

	h.deployer.calls = nil
	h.verifier.calls = nil
	again, err := h.run(t, abcSteps())
	require.NoError(t, err)
	assert.Empty(t, h.deployer.calls)
	assert.Empty(t, h.verifier.calls, "skipped steps are not re-verified")
	assert.Equal(t, []string{"a", "b", "c"}, again.Skipped())
	assert.Empty(t, again.Deployed())
	assert.Equal(t, persisted.Records(), h.persisted(t).Records())
}

func TestRunPassesResolvedDependencyAddresses(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, abcSteps())
	require.NoError(t, err)

	require.Len(t, h.deployer.calls, 3)
	persisted := h.persisted(t)
	addrA, _ := persisted.Get("a")
	addrB, _ := persisted.Get("b")
	assert.Equal(t, deployCall{
		Contract: "C",
		Args:     []string{addrA, addrB, "0x4200000000000000000000000000000000000006"},
	}, h.deployer.calls[2])
}

func TestRunUsesAddressesFromPreviousRun(t *testing.T) {
	h := newHarness(t)
	seed := ledger.NewState(ledger.Meta{Initiator: "0xorig", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)})
	seed.Put("a", "0xaaaa")
	data, err := seed.Encode()
	require.NoError(t, err)
	h.backend.Data = data

	result, err := h.run(t, abcSteps())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Skipped())
	assert.Equal(t, []string{"b", "c"}, result.Deployed())

	require.Len(t, h.deployer.calls, 2)
	assert.Equal(t, "0xaaaa", h.deployer.calls[1].Args[0])
	assert.Equal(t, "0xaaaa", h.persisted(t).Records()["a"], "skipped record is unchanged")
	assert.Equal(t, "0xorig", h.persisted(t).Meta.Initiator)
}

func TestRunFailFastPersistsCompletedSteps(t *testing.T) {
	h := newHarness(t)
	h.deployer.failOn["B"] = errors.New("insufficient funds for gas")

	result, err := h.run(t, abcSteps())
	require.Error(t, err)
	assert.True(t, IsDeployError(err))
	assert.Contains(t, err.Error(), "insufficient funds")

	require.Len(t, h.deployer.calls, 2, "step c must never be attempted")
	assert.Equal(t, []string{"a"}, result.Deployed())

	persisted := h.persisted(t)
	assert.True(t, persisted.Has("a"))
	assert.False(t, persisted.Has("b"))
	assert.False(t, persisted.Has("c"))
	assert.Equal(t, 1, h.backend.Writes, "ledger is flushed exactly once")
}

func TestRunEndToEndFailureScenario(t *testing.T) {
	h := newHarness(t)
	h.deployer.failOn["B"] = errors.New("reverted")
	steps := []Step{{Name: "a", Contract: "A"}, {Name: "b", Contract: "B"}}

	_, err := h.run(t, steps)
	require.Error(t, err)

	persisted := h.persisted(t)
	assert.Equal(t, []string{"a"}, persisted.Names())

	delete(h.deployer.failOn, "B")
	h.deployer.calls = nil
	result, err := h.run(t, steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Skipped())
	assert.Equal(t, []string{"b"}, result.Deployed())
	assert.Equal(t, []deployCall{{Contract: "B"}}, h.deployer.calls)
}

func TestRunVerificationFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.verifier.failOn["A"] = errors.New("explorer timeout")

	result, err := h.run(t, abcSteps())
	require.NoError(t, err)
	assert.Len(t, h.deployer.calls, 3, "run continues after a verification failure")

	a, ok := result.Step("a")
	require.True(t, ok)
	assert.Equal(t, StatusDeployed, a.Status)
	assert.Equal(t, VerifyFailed, a.Verify)
	var verr *VerifyError
	require.ErrorAs(t, a.VerifyErr, &verr)
	assert.Equal(t, "a", verr.Step)

	b, _ := result.Step("b")
	assert.Equal(t, VerifyOK, b.Verify)
	assert.Len(t, result.VerifyFailures(), 1)

	persisted := h.persisted(t)
	addr, err := persisted.Get("a")
	require.NoError(t, err)
	assert.Equal(t, a.Address, addr)
}

func TestRunWithoutVerifierMarksSkipped(t *testing.T) {
	h := newHarness(t)
	orch, err := New(Options{Deployer: h.deployer, Ledger: h.store})
	require.NoError(t, err)
	h.orch = orch

	result, err := h.run(t, abcSteps()[:1])
	require.NoError(t, err)
	assert.Equal(t, VerifySkipped, result.Steps[0].Verify)
}

func TestRunRejectsForwardReferencesBeforeDeploying(t *testing.T) {
	h := newHarness(t)
	steps := []Step{
		{Name: "c", Contract: "C", DependsOn: []string{"a"}},
		{Name: "a", Contract: "A"},
	}

	_, err := h.run(t, steps)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Empty(t, h.deployer.calls)
}

func TestRunRejectsMetadataStepNameAndKeepsLedgerLoadable(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, []Step{{Name: ledger.MetaKey, Contract: "A"}})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Empty(t, h.deployer.calls)

	who := ledger.Initiator{Address: "0xdeployer", Network: "testnet"}
	_, err = h.store.Load(context.Background(), who)
	require.NoError(t, err)

	result, err := h.run(t, abcSteps())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.Deployed())
	assert.Equal(t, "0xdeployer", h.persisted(t).Meta.Initiator)
}

func TestRunArgsBuilderFailureIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	steps := []Step{
		{Name: "a", Contract: "A"},
		{Name: "b", Contract: "B", DependsOn: []string{"a"}, Args: func(map[string]string) ([]string, error) {
			return nil, errors.New("missing constant")
		}},
	}

	_, err := h.run(t, steps)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.True(t, h.persisted(t).Has("a"), "completed steps are flushed on configuration failure")
}

func TestRunEmptyAddressIsDeployFailure(t *testing.T) {
	h := newHarness(t)
	orch, err := New(Options{Deployer: emptyDeployer{}, Ledger: h.store})
	require.NoError(t, err)
	h.orch = orch

	_, err = h.run(t, abcSteps())
	require.Error(t, err)
	assert.True(t, IsDeployError(err))
	assert.Empty(t, h.persisted(t).Names())
}

type emptyDeployer struct{}

func (emptyDeployer) Deploy(context.Context, string, []string) (string, error) { return "", nil }

type failingFlusher struct{}

func (failingFlusher) Flush(context.Context, *ledger.State) error {
	return errors.New("read-only filesystem")
}

func TestRunJoinsFlushErrorWithDeployError(t *testing.T) {
	deployer := &fakeDeployer{failOn: map[string]error{"B": errors.New("reverted")}}
	orch, err := New(Options{Deployer: deployer, Ledger: failingFlusher{}})
	require.NoError(t, err)

	session, err := NewSession(ledger.Initiator{Address: "0x1"}, ledger.NewState(ledger.Meta{}))
	require.NoError(t, err)
	_, _, err = orch.Run(context.Background(), session, abcSteps())
	require.Error(t, err)
	assert.True(t, IsDeployError(err))
	assert.Contains(t, err.Error(), "read-only filesystem")
}

func TestRunFlushesAfterCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	orch, err := New(Options{Deployer: cancellingDeployer{cancel: cancel}, Ledger: h.store})
	require.NoError(t, err)

	state, err := h.store.Load(ctx, ledger.Initiator{Address: "0x1"})
	require.NoError(t, err)
	session, err := NewSession(ledger.Initiator{Address: "0x1"}, state)
	require.NoError(t, err)

	_, _, err = orch.Run(ctx, session, abcSteps())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.backend.Writes)
}

// cancellingDeployer cancels the run context on its second call.
type cancellingDeployer struct{ cancel context.CancelFunc }

func (c cancellingDeployer) Deploy(ctx context.Context, contract string, _ []string) (string, error) {
	if contract == "B" {
		c.cancel()
		return "", ctx.Err()
	}
	return "0x000000000000000000000000000000000000000a", nil
}

func TestVerifyRecorded(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, abcSteps())
	require.NoError(t, err)
	h.verifier.calls = nil

	state := h.persisted(t)
	res, err := h.orch.VerifyRecorded(context.Background(), state, abcSteps(), "c")
	require.NoError(t, err)
	assert.Equal(t, VerifyOK, res.Verify)
	addrA, _ := state.Get("a")
	assert.Equal(t, addrA, res.Args[0])
	assert.Len(t, h.verifier.calls, 1)

	_, err = h.orch.VerifyRecorded(context.Background(), ledger.NewState(ledger.Meta{}), abcSteps(), "a")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	h.verifier.failOn["C"] = errors.New("bytecode mismatch")
	_, err = h.orch.VerifyRecorded(context.Background(), state, abcSteps(), "c")
	var verr *VerifyError
	assert.ErrorAs(t, err, &verr)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Ledger: failingFlusher{}})
	assert.Error(t, err)
	_, err = New(Options{Deployer: &fakeDeployer{}})
	assert.Error(t, err)
}
