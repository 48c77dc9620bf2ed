package directory

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

var ctx = context.Background()

func TestFixture_LookupComputer(t *testing.T) {
	f := NewFixture()
	for _, host := range []string{"SRV-DC01", "srv-dc01", "srv-dc01.corp.local", "arkea"} {
		c, err := f.LookupComputer(ctx, host)
		if err != nil {
			t.Errorf("LookupComputer(%q): %v", host, err)
			continue
		}
		if c.OU == "" {
			t.Errorf("LookupComputer(%q): empty OU", host)
		}
	}
	if _, err := f.LookupComputer(ctx, "unknown-host"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFixture_PrivilegedAccounts(t *testing.T) {
	users, err := NewFixture().PrivilegedAccounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 privileged accounts, got %d", len(users))
	}
	if got := serviceAccounts(users); len(got) != 1 || got[0] != "svc_backup" {
		t.Errorf("service accounts: got %v", got)
	}
}

func TestFixture_Status(t *testing.T) {
	s := NewFixture().Status(ctx)
	if !s.Connected || s.Domain != "corp.local" {
		t.Errorf("unexpected status: %+v", s)
	}
	if s.UsersSynced != 6 || s.ComputersSynced != 5 || s.GroupsSynced != 8 {
		t.Errorf("counts: users=%d computers=%d groups=%d", s.UsersSynced, s.ComputersSynced, s.GroupsSynced)
	}
	if s.PrivilegedAccounts != 2 {
		t.Errorf("privileged: got %d, want 2", s.PrivilegedAccounts)
	}
}

func TestEnrich_fillsMissingIdentityFields(t *testing.T) {
	user := "jsmith"
	v := &model.VectorContext{
		D2Identity:   &model.IdentityDimension{LastLoginUser: &user},
		D13Privilege: &model.PrivilegeDimension{},
	}

	e := NewEnricher(NewFixture(), zap.NewNop())
	if !e.Enrich(ctx, v, "ws-jsmith") {
		t.Fatal("expected enrichment to change the context")
	}
	if v.D2Identity.ADDomain == nil || *v.D2Identity.ADDomain != "corp.local" {
		t.Errorf("ad_domain: got %v", v.D2Identity.ADDomain)
	}
	if v.D2Identity.ADOU == nil || *v.D2Identity.ADOU != "OU=Workstations,DC=corp,DC=local" {
		t.Errorf("ad_ou: got %v", v.D2Identity.ADOU)
	}
	if len(v.D2Identity.ADGroups) != 3 {
		t.Errorf("ad_groups: got %v", v.D2Identity.ADGroups)
	}
	if len(v.D13Privilege.ServiceAccounts) != 1 {
		t.Errorf("service_accounts: got %v", v.D13Privilege.ServiceAccounts)
	}
}

func TestEnrich_keepsAgentSuppliedValues(t *testing.T) {
	domain := "lab.example"
	v := &model.VectorContext{
		D2Identity: &model.IdentityDimension{ADDomain: &domain},
	}
	NewEnricher(NewFixture(), zap.NewNop()).Enrich(ctx, v, "srv-file01")
	if *v.D2Identity.ADDomain != "lab.example" {
		t.Errorf("agent-supplied domain overwritten: %s", *v.D2Identity.ADDomain)
	}
	if v.D2Identity.ADOU == nil {
		t.Error("expected ad_ou to be filled")
	}
}

func TestEnrich_absentDimensionsUntouched(t *testing.T) {
	v := &model.VectorContext{D5ThreatIntel: &model.ThreatIntelDimension{}}
	if NewEnricher(NewFixture(), zap.NewNop()).Enrich(ctx, v, "srv-dc01") {
		t.Error("enrichment should not create dimensions")
	}
	if v.D2Identity != nil || v.D13Privilege != nil {
		t.Error("absent dimensions were created")
	}
}

func TestEnrich_nilEnricherIsNoop(t *testing.T) {
	var e *Enricher
	if e.Enrich(ctx, &model.VectorContext{D2Identity: &model.IdentityDimension{}}, "x") {
		t.Error("nil enricher reported a change")
	}
}
