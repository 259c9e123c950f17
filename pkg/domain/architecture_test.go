package domain

import (
	"testing"

	"batchcore/testutil"
)

// TestDomainImportsStayPure keeps the domain layer free of module packages
// and of third-party libraries beyond the decimal codec.
func TestDomainImportsStayPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		testutil.ModuleImportForbidden,
		testutil.ThirdPartyExcept("github.com/shopspring/decimal"),
	), "domain layer must stay dependency free")
}
