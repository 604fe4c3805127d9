package domain

import (
	"strings"
	"time"
)

// Ownership categorizes who operates a water system.
type Ownership string

const (
	OwnershipMunicipal Ownership = "municipal"
	OwnershipPrivate   Ownership = "private"
	OwnershipOther     Ownership = "other"
)

// SystemType distinguishes community systems from everything else
// (non-transient non-community, transient, wholesalers).
type SystemType string

const (
	SystemTypeCommunity SystemType = "community"
	SystemTypeOther     SystemType = "other"
)

// UtilitySource records which directory a normalized utility came from.
type UtilitySource string

const (
	SourceCurated   UtilitySource = "curated"
	SourceReference UtilitySource = "reference"
)

// RegulatedSystem is a row from the external reference directory of
// regulated water systems. The directory uses SDWIS-style string codes;
// they are decoded at the normalization boundary, not throughout the
// call chain.
type RegulatedSystem struct {
	PWSID            string
	Name             string
	City             string
	StateCode        string
	ZipCode          string
	PopulationServed int
	OwnerTypeCode    string // "L"/"M" municipal-like, "P" private
	SystemTypeCode   string // "CWS" community
	ActivityCode     string // "A" active
}

// CuratedUtility is a locally curated override or addition to the reference
// directory, keyed by the same PWSID and trusted above the reference row
// when both exist.
type CuratedUtility struct {
	PWSID            string
	Name             string
	City             string
	StateCode        string
	ZipCode          string
	PopulationServed int
	Ownership        Ownership
	SystemType       SystemType
	IsActive         bool
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PostalMapping is an explicit zip-code → PWSID association used to
// short-circuit resolution. Mappings are inserted by maintenance tooling
// and may be absent entirely; resolution must tolerate that.
type PostalMapping struct {
	ZipCode   string
	PWSID     string
	IsPrimary bool
}

// Utility is the normalized union of CuratedUtility and RegulatedSystem
// produced by resolution. One canonical shape so callers never branch on
// which directory a candidate came from.
type Utility struct {
	Source           UtilitySource
	PWSID            string
	Name             string
	City             string
	StateCode        string
	ZipCode          string
	PopulationServed int
	Ownership        Ownership
	SystemType       SystemType
	Active           bool
}

// NormalizeCurated converts a curated directory row to the canonical shape.
func NormalizeCurated(u CuratedUtility) Utility {
	return Utility{
		Source:           SourceCurated,
		PWSID:            u.PWSID,
		Name:             u.Name,
		City:             u.City,
		StateCode:        u.StateCode,
		ZipCode:          u.ZipCode,
		PopulationServed: u.PopulationServed,
		Ownership:        u.Ownership,
		SystemType:       u.SystemType,
		Active:           u.IsActive,
	}
}

// NormalizeReference converts a reference directory row to the canonical
// shape, decoding its string codes.
func NormalizeReference(s RegulatedSystem) Utility {
	return Utility{
		Source:           SourceReference,
		PWSID:            s.PWSID,
		Name:             s.Name,
		City:             s.City,
		StateCode:        s.StateCode,
		ZipCode:          s.ZipCode,
		PopulationServed: s.PopulationServed,
		Ownership:        DecodeOwnership(s.OwnerTypeCode),
		SystemType:       decodeSystemType(s.SystemTypeCode),
		Active:           s.ActivityCode == "A",
	}
}

// DecodeOwnership maps an SDWIS owner type code to an Ownership category.
func DecodeOwnership(code string) Ownership {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "L", "M":
		return OwnershipMunicipal
	case "P":
		return OwnershipPrivate
	default:
		return OwnershipOther
	}
}

func decodeSystemType(code string) SystemType {
	if strings.EqualFold(strings.TrimSpace(code), "CWS") {
		return SystemTypeCommunity
	}
	return SystemTypeOther
}

// JurisdictionFromPWSID returns the two-letter jurisdiction prefix of a
// PWSID, upper-cased, or "" when the identifier is too short to carry one.
func JurisdictionFromPWSID(pwsid string) string {
	if len(pwsid) < 2 {
		return ""
	}
	return strings.ToUpper(pwsid[:2])
}
