package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltage-labs/contractctl/internal/config"
	"github.com/voltage-labs/contractctl/internal/ledger"
)

func voltageConfig() *config.DeployConfig {
	return &config.DeployConfig{
		Constants: map[string]string{
			"defiPlatform":  "0x0000000000000000000000000000000000000000",
			"currency":      "0x4200000000000000000000000000000000000006",
			"wrappedNative": "0x4200000000000000000000000000000000000006",
		},
		Steps: []config.StepConfig{
			{Name: "licenseModule", Contract: "LicenseModule"},
			{Name: "royaltyModule", Contract: "RoyaltyModule"},
			{Name: "defiModule", Contract: "DeFiIntegrationModule", Args: []string{"const:defiPlatform"}},
			{
				Name:      "voltageController",
				Contract:  "VoltageController",
				DependsOn: []string{"licenseModule", "royaltyModule", "defiModule"},
				Args: []string{
					"dep:licenseModule", "dep:royaltyModule", "dep:defiModule",
					"const:currency", "const:wrappedNative",
				},
			},
		},
	}
}

func TestStepsFromConfigBuildsArgs(t *testing.T) {
	steps, err := StepsFromConfig(voltageConfig())
	require.NoError(t, err)
	require.Len(t, steps, 4)

	args, err := steps[0].Args(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = steps[2].Args(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x0000000000000000000000000000000000000000"}, args)

	args, err = steps[3].Args(map[string]string{
		"licenseModule": "0x1",
		"royaltyModule": "0x2",
		"defiModule":    "0x3",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0x1", "0x2", "0x3",
		"0x4200000000000000000000000000000000000006",
		"0x4200000000000000000000000000000000000006",
	}, args)

	_, err = steps[3].Args(map[string]string{"licenseModule": "0x1"})
	assert.Error(t, err)
}

func TestStepsFromConfigRejectsUndeclaredDependency(t *testing.T) {
	cfg := voltageConfig()
	cfg.Steps[3].DependsOn = []string{"licenseModule", "royaltyModule"}

	_, err := StepsFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "defiModule")
}

func TestStepsFromConfigRejectsUnknownConstant(t *testing.T) {
	cfg := voltageConfig()
	delete(cfg.Constants, "currency")

	_, err := StepsFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestStepsFromConfigRejectsMisorderedSteps(t *testing.T) {
	cfg := voltageConfig()
	cfg.Steps[0], cfg.Steps[3] = cfg.Steps[3], cfg.Steps[0]

	_, err := StepsFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestValidateSteps(t *testing.T) {
	cases := map[string][]Step{
		"empty name":  {{Name: "", Contract: "A"}},
		"duplicate":   {{Name: "a", Contract: "A"}, {Name: "a", Contract: "A"}},
		"no contract": {{Name: "a"}},
		"self":        {{Name: "a", Contract: "A", DependsOn: []string{"a"}}},
		"unknown dep": {{Name: "a", Contract: "A", DependsOn: []string{"zzz"}}},
		"reserved":    {{Name: ledger.MetaKey, Contract: "A"}},
	}
	for name, steps := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, IsConfigurationError(ValidateSteps(steps)))
		})
	}

	assert.NoError(t, ValidateSteps(abcSteps()))
	assert.NoError(t, ValidateSteps(nil))
}

func TestPlan(t *testing.T) {
	steps, err := StepsFromConfig(voltageConfig())
	require.NoError(t, err)

	state := &ledger.State{}
	require.NoError(t, state.UnmarshalJSON([]byte(`{"licenseModule": "0x1"}`)))

	planned, err := Plan(state, steps)
	require.NoError(t, err)
	require.Len(t, planned, 4)

	assert.Equal(t, StatusSkipped, planned[0].Action)
	assert.Equal(t, "0x1", planned[0].Address)
	assert.Equal(t, StatusDeployed, planned[1].Action)
	assert.Equal(t, []string{
		"0x1", "<pending:royaltyModule>", "<pending:defiModule>",
		"0x4200000000000000000000000000000000000006",
		"0x4200000000000000000000000000000000000006",
	}, planned[3].Args)
	assert.False(t, state.Dirty(), "planning never mutates the ledger")
}
