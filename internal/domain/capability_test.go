package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapability_Kind(t *testing.T) {
	tests := []struct {
		cap  Capability
		want CapabilityKind
	}{
		{CapManageTiers, KindAdministrative},
		{CapAssignOrgTier, KindAdministrative},
		{CapSearch, KindQuota},
		{CapAnalyzeBrief, KindQuota},
		{CapListLawSections, KindResultSize},
		{CapListCaseHistories, KindResultSize},
		{ExportCapability(FormatDOCX), KindFeature},
		{ExportCapability("odt"), KindUnknown},
		{DraftCapability(DraftAffidavit), KindFeature},
		{DraftCapability("memo"), KindUnknown},
		{CapRiskAssessment, KindFeature},
		{CapSharing, KindFeature},
		{"fly", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.cap), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cap.Kind())
		})
	}
}

func TestCapability_SuperAdminOnly(t *testing.T) {
	for _, c := range []Capability{CapManageTiers, CapAssignRoles, CapRevokeAdmin, CapManageCurrencies, CapDeleteUsers} {
		assert.True(t, c.SuperAdminOnly(), c)
	}
	assert.False(t, CapAssignOrgTier.SuperAdminOnly())
	assert.False(t, CapSearch.SuperAdminOnly())
}

func TestCapability_Params(t *testing.T) {
	f, ok := ExportCapability(FormatTXT).ExportFormat()
	assert.True(t, ok)
	assert.Equal(t, FormatTXT, f)

	d, ok := DraftCapability(DraftLegalNotice).DraftingType()
	assert.True(t, ok)
	assert.Equal(t, DraftLegalNotice, d)

	_, ok = CapSearch.ExportFormat()
	assert.False(t, ok)
}

func TestParseCapability(t *testing.T) {
	assert.Equal(t, ExportCapability(FormatDOCX), ParseCapability("  Export_Document:DOCX "))
}
