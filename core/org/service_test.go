package org_test

import (
	"context"
	"testing"

	"github.com/trezcool/pamoja/core/org"
	inmemdb "github.com/trezcool/pamoja/storage/database/inmem"
	testutil "github.com/trezcool/pamoja/tests"
)

func newService(t *testing.T) (*org.Service, org.Repository) {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	repo := inmemdb.NewOrgRepository(db)
	return org.NewService(repo), repo
}

func TestUpdateOrganization(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	o := testutil.CreateOrg(t, repo, org.KindSchool, "Lycée Nord", true)

	// partial updates leave the name alone
	yes := true
	got, err := svc.Update(ctx, o.Ref(), org.UpdateOrganization{Certified: &yes})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got.Name != "Lycée Nord" {
		t.Errorf("name = %q, want %q", got.Name, "Lycée Nord")
	}
	if !got.Certified {
		t.Error("org not certified")
	}

	got, err = svc.Update(ctx, o.Ref(), org.UpdateOrganization{Name: "Lycée Sud"})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got.Name != "Lycée Sud" {
		t.Errorf("name = %q, want %q", got.Name, "Lycée Sud")
	}
	if !got.Certified {
		t.Error("certification lost on rename")
	}

	// member sharing is a company knob; schools stay off
	got, err = svc.Update(ctx, o.Ref(), org.UpdateOrganization{ShareMembersWithBranches: &yes})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got.ShareMembersWithBranches {
		t.Error("school must not share members with branches")
	}

	if _, err = svc.Update(ctx, org.Ref{Kind: org.KindSchool, ID: "nope"}, org.UpdateOrganization{}); err != org.ErrNotFound {
		t.Errorf("Update() error = %v, want %v", err, org.ErrNotFound)
	}
}
