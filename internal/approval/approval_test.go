package approval

import (
	"testing"

	"github.com/flemzord/streamexec/internal/capability"
)

func localDesc(name string, risk capability.RiskClass) capability.Descriptor {
	return capability.Descriptor{Name: name, Kind: capability.KindLocal, Risk: risk}
}

func enabledPolicy() Policy {
	return Policy{
		Enabled: true,
		Read:    ClassPolicy{Local: true},
		Write:   ClassPolicy{Local: true},
	}
}

func TestDecide_DisabledShortCircuits(t *testing.T) {
	t.Parallel()

	pol := enabledPolicy()
	pol.Disabled = []string{"execute_command"}

	d := Decide(localDesc("execute_command", capability.RiskExecute), ScopeLocal, pol)
	if d.Outcome != Deny {
		t.Fatalf("outcome = %s, want Deny", d.Outcome)
	}
}

func TestDecide_MasterSwitchOff(t *testing.T) {
	t.Parallel()

	pol := enabledPolicy()
	pol.Enabled = false

	d := Decide(localDesc("read_file", capability.RiskReadOnly), ScopeLocal, pol)
	if d.Outcome != RequireInteractive {
		t.Fatalf("outcome = %s, want RequireInteractive", d.Outcome)
	}
}

func TestDecide_LocalScopeAutoApproved(t *testing.T) {
	t.Parallel()

	d := Decide(localDesc("read_file", capability.RiskReadOnly), ScopeLocal, enabledPolicy())
	if d.Outcome != AutoApprove {
		t.Fatalf("outcome = %s, want AutoApprove", d.Outcome)
	}
}

func TestDecide_ExternalScopeNeedsBothToggles(t *testing.T) {
	t.Parallel()

	desc := localDesc("read_file", capability.RiskReadOnly)

	pol := enabledPolicy() // read: local only
	if d := Decide(desc, ScopeExternal, pol); d.Outcome != RequireInteractive {
		t.Fatalf("external without external toggle: %s, want RequireInteractive", d.Outcome)
	}

	pol.Read.External = true
	if d := Decide(desc, ScopeExternal, pol); d.Outcome != AutoApprove {
		t.Fatalf("external with both toggles: %s, want AutoApprove", d.Outcome)
	}
}

func TestDecide_ExternalToggleAloneInsufficient(t *testing.T) {
	t.Parallel()

	pol := Policy{Enabled: true, Read: ClassPolicy{Local: false, External: true}}
	desc := localDesc("read_file", capability.RiskReadOnly)

	if d := Decide(desc, ScopeExternal, pol); d.Outcome != RequireInteractive {
		t.Fatalf("external-only grant auto-approved: %s", d.Outcome)
	}
	if d := Decide(desc, ScopeLocal, pol); d.Outcome != RequireInteractive {
		t.Fatalf("local call under external-only grant auto-approved: %s", d.Outcome)
	}
}

func TestDecide_RemoteNeedsAdvertisedFlag(t *testing.T) {
	t.Parallel()

	pol := enabledPolicy()
	pol.Remote = true

	untrusted := capability.Descriptor{
		Name: "weather", Kind: capability.KindRemote, ProviderID: "p", AutoApprove: false,
	}
	if d := Decide(untrusted, ScopeLocal, pol); d.Outcome != RequireInteractive {
		t.Fatalf("remote without advertised flag: %s, want RequireInteractive", d.Outcome)
	}

	trusted := untrusted
	trusted.AutoApprove = true
	if d := Decide(trusted, ScopeLocal, pol); d.Outcome != AutoApprove {
		t.Fatalf("trusted remote: %s, want AutoApprove", d.Outcome)
	}
}

func TestDecide_RemoteToggleOffOverridesAdvertisedFlag(t *testing.T) {
	t.Parallel()

	pol := enabledPolicy() // Remote: false
	trusted := capability.Descriptor{
		Name: "weather", Kind: capability.KindRemote, ProviderID: "p", AutoApprove: true,
	}
	if d := Decide(trusted, ScopeLocal, pol); d.Outcome != RequireInteractive {
		t.Fatalf("remote with toggle off: %s, want RequireInteractive", d.Outcome)
	}
}

func TestDecide_WriteClassCoversBothWriteRisks(t *testing.T) {
	t.Parallel()

	pol := enabledPolicy()
	for _, risk := range []capability.RiskClass{capability.RiskWriteLocal, capability.RiskWriteExternal} {
		d := Decide(localDesc("write_to_file", risk), ScopeLocal, pol)
		if d.Outcome != AutoApprove {
			t.Fatalf("risk %s: outcome = %s, want AutoApprove", risk, d.Outcome)
		}
	}
}
