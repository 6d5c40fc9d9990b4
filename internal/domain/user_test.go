package domain_test

import (
	"testing"

	"github.com/dpoglobal/issuance/internal/domain"
)

func TestUserRole_CanAccessBackoffice(t *testing.T) {
	if domain.RoleParticipant.CanAccessBackoffice() {
		t.Error("participant must not access the backoffice")
	}
	for _, r := range []domain.UserRole{
		domain.RoleAdmin, domain.RoleCompliance, domain.RoleOps,
		domain.RoleSettlement, domain.RoleReporting, domain.RoleReadOnly,
	} {
		if !r.CanAccessBackoffice() {
			t.Errorf("%s should access the backoffice", r)
		}
	}
}

func TestUserRole_Capabilities(t *testing.T) {
	if !domain.RoleCompliance.IsComplianceAuthority() || !domain.RoleAdmin.IsComplianceAuthority() {
		t.Error("compliance and admin are the compliance authorities")
	}
	if domain.RoleOps.IsComplianceAuthority() {
		t.Error("ops is not a compliance authority")
	}

	if !domain.RoleReporting.CanReportDerivatives() || !domain.RoleAdmin.CanReportDerivatives() {
		t.Error("reporting and admin may report derivatives")
	}
	if domain.RoleSettlement.CanReportDerivatives() {
		t.Error("settlement role may not report derivatives")
	}

	for _, r := range []domain.UserRole{domain.RoleSettlement, domain.RoleOps, domain.RoleAdmin} {
		if !r.CanOperateSettlements() {
			t.Errorf("%s should operate settlements", r)
		}
	}
	if domain.RoleReadOnly.CanOperateSettlements() {
		t.Error("read-only role may not operate settlements")
	}
}
