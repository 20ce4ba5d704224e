package domain

import (
	"slices"
	"strings"
)

// Capability names a permission-gated action.
type Capability string

// Administrative capabilities.
const (
	CapManageTiers        Capability = "manage_tiers"
	CapAssignRoles        Capability = "assign_roles"
	CapRevokeAdmin        Capability = "revoke_admin"
	CapManageCurrencies   Capability = "manage_currencies"
	CapDeleteUsers        Capability = "delete_users"
	CapConfigureSystem    Capability = "configure_system"
	CapViewAnalytics      Capability = "view_analytics"
	CapAssignOrgTier      Capability = "assign_org_tier"
	CapManageRegularUsers Capability = "manage_regular_users"
	CapViewBasicAnalytics Capability = "view_basic_analytics"
	CapManageContent      Capability = "manage_content"
)

// Quota-bounded capabilities.
const (
	CapSearch       Capability = "search"
	CapAnalyzeBrief Capability = "analyze_brief"
)

// Result-size-bounded capabilities.
const (
	CapListLawSections   Capability = "list_law_sections"
	CapListCaseHistories Capability = "list_case_histories"
)

// Feature capabilities. Parameterised ones are built with ExportCapability
// and DraftCapability.
const (
	CapCaseDrafting        Capability = "case_drafting"
	CapSharing             Capability = "sharing"
	CapAdvancedDrafting    Capability = Capability(FeatureAdvancedDrafting)
	CapRiskAssessment      Capability = Capability(FeatureRiskAssessment)
	CapComparativeAnalysis Capability = Capability(FeatureComparativeAnalysis)
	CapAPIAccess           Capability = Capability(FeatureAPIAccess)
	CapCustomTemplates     Capability = Capability(FeatureCustomTemplates)
	CapPriorityProcessing  Capability = Capability(FeaturePriorityProcessing)
	CapTeamCollaboration   Capability = Capability(FeatureTeamCollaboration)

	exportPrefix = "export_document:"
	draftPrefix  = "draft_case_file:"
)

// ExportCapability is the capability for exporting in format f.
func ExportCapability(f DocumentFormat) Capability {
	return Capability(exportPrefix + string(f))
}

// DraftCapability is the capability for drafting a document of type d.
func DraftCapability(d DraftingType) Capability {
	return Capability(draftPrefix + string(d))
}

// CapabilityKind classifies how the gate evaluates a capability.
type CapabilityKind int

const (
	KindUnknown CapabilityKind = iota
	KindAdministrative
	KindQuota
	KindResultSize
	KindFeature
)

func (k CapabilityKind) String() string {
	switch k {
	case KindAdministrative:
		return "administrative"
	case KindQuota:
		return "quota"
	case KindResultSize:
		return "result_size"
	case KindFeature:
		return "feature"
	}
	return "unknown"
}

// superAdminOnly is the fixed subset of administrative capabilities that an
// admin cannot exercise.
var superAdminOnly = map[Capability]bool{
	CapManageTiers:      true,
	CapAssignRoles:      true,
	CapRevokeAdmin:      true,
	CapManageCurrencies: true,
	CapDeleteUsers:      true,
	CapConfigureSystem:  true,
	CapViewAnalytics:    true,
}

var adminLevel = map[Capability]bool{
	CapAssignOrgTier:      true,
	CapManageRegularUsers: true,
	CapViewBasicAnalytics: true,
	CapManageContent:      true,
}

// Kind returns how the capability is gated.
func (c Capability) Kind() CapabilityKind {
	switch {
	case superAdminOnly[c] || adminLevel[c]:
		return KindAdministrative
	case c == CapSearch || c == CapAnalyzeBrief:
		return KindQuota
	case c == CapListLawSections || c == CapListCaseHistories:
		return KindResultSize
	case c == CapCaseDrafting || c == CapSharing:
		return KindFeature
	}
	if f, ok := c.ExportFormat(); ok {
		if validFormat(f) {
			return KindFeature
		}
		return KindUnknown
	}
	if d, ok := c.DraftingType(); ok {
		if validDraftingType(d) {
			return KindFeature
		}
		return KindUnknown
	}
	for _, f := range KnownFeatures {
		if c == Capability(f) {
			return KindFeature
		}
	}
	return KindUnknown
}

// SuperAdminOnly reports whether only super_admin may exercise c.
func (c Capability) SuperAdminOnly() bool {
	return superAdminOnly[c]
}

// ExportFormat returns the format of an export capability.
func (c Capability) ExportFormat() (DocumentFormat, bool) {
	rest, ok := strings.CutPrefix(string(c), exportPrefix)
	return DocumentFormat(rest), ok
}

// DraftingType returns the document type of a drafting capability.
func (c Capability) DraftingType() (DraftingType, bool) {
	rest, ok := strings.CutPrefix(string(c), draftPrefix)
	return DraftingType(rest), ok
}

// ParseCapability normalises user input into a Capability.
func ParseCapability(s string) Capability {
	return Capability(strings.ToLower(strings.TrimSpace(s)))
}

func validFormat(f DocumentFormat) bool {
	return slices.Contains(KnownFormats, f)
}

func validDraftingType(d DraftingType) bool {
	return slices.Contains(KnownDraftingTypes, d)
}
