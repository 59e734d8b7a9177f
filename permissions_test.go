// permissions_test.go: tests for the closed permission model and the
// process-wide permission checker
//
// Copyright (c) 2025 OmniTAK Project
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"fmt"
	"sync"
	"testing"
)

func TestPermissionCatalog_Integrity(t *testing.T) {
	all := AllPermissions()
	if len(all) != 14 {
		t.Fatalf("Closed permission set has %d entries, expected 14", len(all))
	}

	seen := make(map[Permission]bool)
	for _, p := range all {
		if seen[p] {
			t.Errorf("Permission %q appears twice in the catalog", p)
		}
		seen[p] = true

		info, ok := LookupPermission(string(p))
		if !ok {
			t.Errorf("LookupPermission(%q) should succeed for a catalog entry", p)
			continue
		}
		if info.Permission != p {
			t.Errorf("Catalog entry for %q names %q", p, info.Permission)
		}
		if info.Description == "" {
			t.Errorf("Permission %q has no description", p)
		}
		if info.Risk.String() == "unknown" {
			t.Errorf("Permission %q has no risk tier", p)
		}
	}
}

func TestPermissionCatalog_RiskTiers(t *testing.T) {
	expectedHigh := map[Permission]bool{
		PermissionNetwork:          true,
		PermissionCoTWrite:         true,
		PermissionLocationRead:     true,
		PermissionPeripheralAccess: true,
		PermissionFilesystemWrite:  true,
	}

	high := HighRiskPermissions()
	if len(high) != len(expectedHigh) {
		t.Fatalf("HighRiskPermissions() returned %d entries, expected %d: %v",
			len(high), len(expectedHigh), high)
	}
	for _, p := range high {
		if !expectedHigh[p] {
			t.Errorf("Permission %q should not be graded high risk", p)
		}
	}
}

func TestIsKnownPermission(t *testing.T) {
	if !IsKnownPermission("cot.read") {
		t.Error("cot.read belongs to the closed set")
	}
	if IsKnownPermission("cot.admin") {
		t.Error("cot.admin does not belong to the closed set")
	}
	if IsKnownPermission("") {
		t.Error("the empty identifier does not belong to the closed set")
	}
	if IsKnownPermission("COT.READ") {
		t.Error("permission identifiers are case-sensitive")
	}
}

func TestRiskLevel_String(t *testing.T) {
	testCases := map[RiskLevel]string{
		RiskLow:       "low",
		RiskMedium:    "medium",
		RiskHigh:      "high",
		RiskLevel(42): "unknown",
	}
	for level, expected := range testCases {
		if got := level.String(); got != expected {
			t.Errorf("RiskLevel(%d).String() = %q, expected %q", level, got, expected)
		}
	}
}

func TestNewPermissionSet(t *testing.T) {
	t.Run("Builds_From_Valid_Identifiers", func(t *testing.T) {
		set, err := NewPermissionSet([]string{"cot.read", "ui.create", "cot.read"})
		if err != nil {
			t.Fatalf("NewPermissionSet failed: %v", err)
		}
		if set.Count() != 2 {
			t.Errorf("Duplicates must collapse: Count() = %d, expected 2", set.Count())
		}
		if !set.Has(PermissionCoTRead) || !set.Has(PermissionUICreate) {
			t.Error("Set must contain the declared permissions")
		}
	})

	t.Run("Rejects_Unknown_Identifier", func(t *testing.T) {
		set, err := NewPermissionSet([]string{"cot.read", "orbital.strike"})
		if set != nil {
			t.Error("No set may be returned on failure")
		}
		if err == nil {
			t.Fatal("Unknown identifier must fail construction")
		}
		assertErrorCode(t, err, ErrCodeUnknownPermission)
		assertErrorContext(t, err, "permission", "orbital.strike")
	})

	t.Run("Empty_Declaration_Is_Valid", func(t *testing.T) {
		set, err := NewPermissionSet(nil)
		if err != nil {
			t.Fatalf("NewPermissionSet(nil) failed: %v", err)
		}
		if set.Count() != 0 {
			t.Errorf("Count() = %d, expected 0", set.Count())
		}
		if set.Has(PermissionNetwork) {
			t.Error("Empty set must hold nothing")
		}
	})
}

func TestPermissionSet_Queries(t *testing.T) {
	set := mustPermissionSet(t, "cot.read", "ui.create", "storage.read")

	if !set.HasAll(PermissionCoTRead, PermissionUICreate) {
		t.Error("HasAll must be true when every permission is held")
	}
	if set.HasAll(PermissionCoTRead, PermissionNetwork) {
		t.Error("HasAll must be false when any permission is missing")
	}
	if !set.HasAll() {
		t.Error("HasAll with no arguments is trivially satisfied")
	}

	if !set.HasAny(PermissionNetwork, PermissionCoTRead) {
		t.Error("HasAny must be true when at least one permission is held")
	}
	if set.HasAny(PermissionNetwork, PermissionMapWrite) {
		t.Error("HasAny must be false when no permission is held")
	}
	if set.HasAny() {
		t.Error("HasAny with no arguments is never satisfied")
	}

	list := set.List()
	expected := []Permission{PermissionCoTRead, PermissionStorageRead, PermissionUICreate}
	if len(list) != len(expected) {
		t.Fatalf("List() returned %d entries, expected %d", len(list), len(expected))
	}
	for i, p := range expected {
		if list[i] != p {
			t.Errorf("List()[%d] = %q, expected %q (lexical order)", i, list[i], p)
		}
	}
}

func TestPermissionSet_NilSafety(t *testing.T) {
	var set *PermissionSet
	if set.Has(PermissionNetwork) {
		t.Error("nil set holds nothing")
	}
	if set.Count() != 0 {
		t.Error("nil set counts zero")
	}
	if set.List() != nil {
		t.Error("nil set lists nothing")
	}
}

func TestPermissionChecker_GrantCheckRevoke(t *testing.T) {
	checker := NewPermissionChecker(nil)
	const pluginID = "com.omnitak.geochat"

	// Before any grant the plugin is indistinguishable from an unknown one.
	if err := checker.CheckPermission(pluginID, PermissionCoTRead); err == nil {
		t.Fatal("CheckPermission must fail before any grant")
	} else {
		assertErrorCode(t, err, ErrCodeNoGrantsForPlugin)
	}
	if _, ok := checker.Granted(pluginID); ok {
		t.Error("Granted must report no grants before Grant")
	}

	checker.Grant(pluginID, mustPermissionSet(t, "cot.read", "ui.create"))

	if !checker.Has(pluginID, PermissionCoTRead) {
		t.Error("Granted permission must be held")
	}
	if checker.Has(pluginID, PermissionNetwork) {
		t.Error("Ungranted permission must not be held")
	}
	if err := checker.CheckPermission(pluginID, PermissionCoTRead); err != nil {
		t.Errorf("CheckPermission on a granted permission failed: %v", err)
	}

	err := checker.CheckPermission(pluginID, PermissionNetwork)
	if err == nil {
		t.Fatal("CheckPermission on an ungranted permission must fail")
	}
	if !IsPermissionDenied(err) {
		t.Errorf("Expected a permission error, got: %v", err)
	}
	assertErrorCode(t, err, ErrCodePermissionDenied)
	assertErrorContext(t, err, "permission", "network")

	granted, ok := checker.Granted(pluginID)
	if !ok || len(granted) != 2 {
		t.Errorf("Granted = %v, %v; expected two permissions", granted, ok)
	}

	checker.Revoke(pluginID)
	if checker.Has(pluginID, PermissionCoTRead) {
		t.Error("Revoked plugin must hold nothing")
	}
	if err := checker.CheckPermission(pluginID, PermissionCoTRead); err == nil {
		t.Error("CheckPermission must fail after revocation")
	} else {
		assertErrorCode(t, err, ErrCodeNoGrantsForPlugin)
	}

	// Revoking again is a no-op.
	checker.Revoke(pluginID)
}

func TestPermissionChecker_GrantReplacesWholesale(t *testing.T) {
	checker := NewPermissionChecker(nil)
	const pluginID = "com.omnitak.tracker"

	checker.Grant(pluginID, mustPermissionSet(t, "location.read", "map.write"))
	checker.Grant(pluginID, mustPermissionSet(t, "ui.create"))

	if checker.Has(pluginID, PermissionLocationRead) {
		t.Error("Replaced grant must not survive")
	}
	if !checker.Has(pluginID, PermissionUICreate) {
		t.Error("New grant must be in effect")
	}
}

func TestPermissionChecker_ConcurrentAccess(t *testing.T) {
	checker := NewPermissionChecker(nil)
	set := mustPermissionSet(t, "cot.read")

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			pluginID := fmt.Sprintf("com.omnitak.worker%d", worker)
			for iteration := 0; iteration < 200; iteration++ {
				checker.Grant(pluginID, set)
				checker.Has(pluginID, PermissionCoTRead)
				_ = checker.CheckPermission(pluginID, PermissionCoTWrite)
				checker.Granted(pluginID)
				checker.Revoke(pluginID)
			}
		}(worker)
	}
	wg.Wait()

	for worker := 0; worker < 8; worker++ {
		pluginID := fmt.Sprintf("com.omnitak.worker%d", worker)
		if _, ok := checker.Granted(pluginID); ok {
			t.Errorf("Plugin %s still has grants after the final revoke", pluginID)
		}
	}
}
