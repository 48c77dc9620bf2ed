package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorContext_wrongTypedFieldIsZeroed(t *testing.T) {
	raw := `{
		"d3_behavior": {"failed_logins_24h": "lots", "load_average": 5, "process_count": 212},
		"d6_vulnerability": {"dangerous_ports_open": "22", "total_open_ports": 4,
			"vuln_severity": {"critical": "many", "high": 2}},
		"d12_patch": {"days_since_update": "never", "eol_status": "eol"},
		"collection_version": 3
	}`

	var v VectorContext
	require.NoError(t, json.Unmarshal([]byte(raw), &v))

	require.NotNil(t, v.D3Behavior)
	assert.Equal(t, 0, v.D3Behavior.FailedLogins24h)
	assert.Equal(t, 5.0, v.D3Behavior.LoadAverage)
	assert.Equal(t, 212, v.D3Behavior.ProcessCount)

	require.NotNil(t, v.D6Vulnerability)
	assert.Nil(t, v.D6Vulnerability.DangerousPortsOpen)
	assert.Equal(t, 4, v.D6Vulnerability.TotalOpenPorts)
	assert.Equal(t, VulnSeverity{High: 2}, v.D6Vulnerability.VulnSeverity)

	require.NotNil(t, v.D12Patch)
	assert.Nil(t, v.D12Patch.DaysSinceUpdate)
	assert.Equal(t, "eol", v.D12Patch.EOLStatus)

	assert.Empty(t, v.CollectionVersion)
	assert.Equal(t, []string{DimBehavior, DimVulnerability, DimPatch}, presentKeys(&v))
}

func TestVectorContext_nonObjectDimension(t *testing.T) {
	var v VectorContext
	require.NoError(t, json.Unmarshal([]byte(`{"d1_network": "eth0", "d2_identity": null}`), &v))

	require.NotNil(t, v.D1Network)
	assert.Equal(t, NetworkDimension{}, *v.D1Network)
	assert.Nil(t, v.D2Identity)
}

func TestVectorContext_wellFormedUnchanged(t *testing.T) {
	days := 30
	in := VectorContext{
		D7Criticality: &CriticalityDimension{BusinessImpact: "high", IsInternetFacing: true},
		D12Patch:      &PatchDimension{DaysSinceUpdate: &days, PendingUpdates: 4},
		VectorScore:   57,
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out VectorContext
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestHeartbeatPayload_malformedJSONStillFails(t *testing.T) {
	var p HeartbeatPayload
	assert.Error(t, json.Unmarshal([]byte(`{"vector_context": {"d3_behavior": {`), &p))
}

func presentKeys(v *VectorContext) []string {
	var keys []string
	for _, d := range v.Present() {
		keys = append(keys, d.Key)
	}
	return keys
}
