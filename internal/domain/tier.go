// Package domain contains core business types and interfaces.
//
// This file defines subscription tiers: their quotas, allowed document
// formats, drafting types and explicit feature sets.
package domain

import (
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TierName identifies a subscription tier.
type TierName string

// Built-in tier names. Other names must be registered by a super admin
// before a tier can use them.
const (
	TierFree       TierName = "free"
	TierPro        TierName = "pro"
	TierEnterprise TierName = "enterprise"
)

// BuiltinTierNames are always present in the tier-name registry.
var BuiltinTierNames = []TierName{TierFree, TierPro, TierEnterprise}

// Unlimited is the sentinel for quota and result caps without a ceiling.
// It is stored as NULL.
const Unlimited = -1

// DefaultCurrency is used when a tier does not name one.
const DefaultCurrency = "INR"

// DocumentFormat is an export format for generated documents.
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatDOCX DocumentFormat = "docx"
	FormatTXT  DocumentFormat = "txt"
)

// KnownFormats lists every export format the platform can render.
var KnownFormats = []DocumentFormat{FormatPDF, FormatDOCX, FormatTXT}

// DraftingType is a case-file document type the drafting agent produces.
type DraftingType string

const (
	DraftPetition         DraftingType = "petition"
	DraftReply            DraftingType = "reply"
	DraftRejoinder        DraftingType = "rejoinder"
	DraftAffidavit        DraftingType = "affidavit"
	DraftWrittenStatement DraftingType = "written_statement"
	DraftLegalNotice      DraftingType = "legal_notice"
)

// KnownDraftingTypes lists every drafting document type.
var KnownDraftingTypes = []DraftingType{
	DraftPetition, DraftReply, DraftRejoinder,
	DraftAffidavit, DraftWrittenStatement, DraftLegalNotice,
}

// Feature is a qualitative capability a tier may include. Features are
// granted per tier and are not implied by any other tier.
type Feature string

const (
	FeatureAdvancedDrafting    Feature = "advanced_drafting"
	FeatureRiskAssessment      Feature = "risk_assessment"
	FeatureComparativeAnalysis Feature = "comparative_analysis"
	FeatureAPIAccess           Feature = "api_access"
	FeatureCustomTemplates     Feature = "custom_templates"
	FeaturePriorityProcessing  Feature = "priority_processing"
	FeatureTeamCollaboration   Feature = "team_collaboration"
)

// KnownFeatures lists every feature a tier can grant.
var KnownFeatures = []Feature{
	FeatureAdvancedDrafting, FeatureRiskAssessment, FeatureComparativeAnalysis,
	FeatureAPIAccess, FeatureCustomTemplates, FeaturePriorityProcessing,
	FeatureTeamCollaboration,
}

// Tier is a named subscription level. Integer columns are INTEGER in the
// store, so every int field is bounded to int32.
type Tier struct {
	Name              TierName         `validate:"required,tiername"`
	DisplayName       string           `validate:"max=64"`
	PriceMinor        int64            `validate:"gte=0"`
	Currency          string           `validate:"required,len=3"`
	UserLimit         *int             `validate:"omitempty,gt=0,lte=2147483647"`
	DurationDays      int              `validate:"gt=0,lte=2147483647"`
	MaxSearchesPerDay int              `validate:"gte=-1,lte=2147483647"`
	MaxLawSections    int              `validate:"gte=-1,lte=2147483647"`
	MaxCaseHistories  int              `validate:"gte=-1,lte=2147483647"`
	DocumentFormats   []DocumentFormat `validate:"dive,documentformat"`
	DraftingTypes     []DraftingType   `validate:"dive,draftingtype"`
	Features          []Feature        `validate:"dive,feature"`
	SharingEnabled    bool
	Description       string `validate:"max=2000"`
	SortOrder         int    `validate:"gte=-2147483648,lte=2147483647"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasFormat reports whether the tier can export documents in format f.
func (t *Tier) HasFormat(f DocumentFormat) bool {
	return slices.Contains(t.DocumentFormats, f)
}

// HasDraftingType reports whether the tier can draft documents of type d.
func (t *Tier) HasDraftingType(d DraftingType) bool {
	return slices.Contains(t.DraftingTypes, d)
}

// HasFeature reports whether the tier explicitly includes feature f.
func (t *Tier) HasFeature(f Feature) bool {
	return slices.Contains(t.Features, f)
}

// Label returns the display name, falling back to the title-cased tier name.
func (t *Tier) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return cases.Title(language.English).String(string(t.Name))
}

// DisplayPrice formats the price with its currency symbol, e.g. "₹ 499.00".
// Unknown currency codes fall back to "<code> <amount>".
func (t *Tier) DisplayPrice() string {
	major := float64(t.PriceMinor) / 100
	unit, err := currency.ParseISO(t.Currency)
	if err != nil {
		return fmt.Sprintf("%s %.2f", t.Currency, major)
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(major)))
}

// IsFree reports whether the tier is the fallback free tier.
func (t *Tier) IsFree() bool {
	return t.Name == TierFree
}

// DefaultTiers returns the built-in catalog seeded by the initial migration.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Name:              TierFree,
			DisplayName:       "Free",
			PriceMinor:        0,
			Currency:          DefaultCurrency,
			UserLimit:         intPtr(1),
			DurationDays:      3650,
			MaxSearchesPerDay: 10,
			MaxLawSections:    5,
			MaxCaseHistories:  5,
			DocumentFormats:   []DocumentFormat{FormatPDF},
			DraftingTypes:     []DraftingType{},
			Features:          []Feature{},
			Description:       "Basic brief analysis with limited results and PDF export.",
			SortOrder:         10,
		},
		{
			Name:              TierPro,
			DisplayName:       "Pro",
			PriceMinor:        49900,
			Currency:          DefaultCurrency,
			UserLimit:         intPtr(1),
			DurationDays:      30,
			MaxSearchesPerDay: 50,
			MaxLawSections:    20,
			MaxCaseHistories:  20,
			DocumentFormats:   []DocumentFormat{FormatPDF, FormatDOCX, FormatTXT},
			DraftingTypes:     []DraftingType{DraftPetition, DraftReply},
			Features:          []Feature{FeaturePriorityProcessing},
			SharingEnabled:    true,
			Description:       "Comprehensive results, all export formats and basic case drafting.",
			SortOrder:         20,
		},
		{
			Name:              TierEnterprise,
			DisplayName:       "Enterprise",
			PriceMinor:        499900,
			Currency:          DefaultCurrency,
			DurationDays:      30,
			MaxSearchesPerDay: Unlimited,
			MaxLawSections:    Unlimited,
			MaxCaseHistories:  Unlimited,
			DocumentFormats:   []DocumentFormat{FormatPDF, FormatDOCX, FormatTXT},
			DraftingTypes:     slices.Clone(KnownDraftingTypes),
			Features: []Feature{
				FeatureAdvancedDrafting, FeatureRiskAssessment, FeatureComparativeAnalysis,
				FeatureAPIAccess, FeatureCustomTemplates, FeaturePriorityProcessing,
				FeatureTeamCollaboration,
			},
			SharingEnabled: true,
			Description:    "Unlimited analysis, advanced drafting, risk assessment and team seats.",
			SortOrder:      30,
		},
	}
}

// FreeTierFallback returns the built-in free tier. It is used when the
// catalog row for "free" cannot be read.
func FreeTierFallback() Tier {
	return DefaultTiers()[0]
}

func intPtr(v int) *int {
	return &v
}
