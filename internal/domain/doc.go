// Package domain models public water system records and chlorine residual
// readings sourced from consumer water-quality disclosures.
//
// # Identifiers
//
// Every regulated water system carries a PWSID (public water system
// identifier): a two-letter jurisdiction code followed by digits, e.g.
// "TN0000247". The jurisdiction prefix is the anchor for geographic
// consistency checks: a reading whose evidence points at another
// jurisdiction is treated as suspect regardless of how plausible the
// number looks.
//
// # Reference directory codes
//
// The regulated-system reference directory uses SDWIS-style codes:
//
//	owner type:  "L" or "M" → municipal-like, "P" → private, anything else → other
//	system type: "CWS" → community water system
//	activity:    "A" → active
//
// The curated utility directory mirrors these as typed enums; see
// [Ownership] and [Utility].
//
// # Chlorine bounds
//
// Readings are concentrations in parts per million (ppm). Validation uses
// two nested bands:
//
//	hard:    0.1–4.0 ppm (regulatory floor of detectability and MRDL ceiling);
//	         outside this band a reading is rejected outright.
//	typical: 0.2–2.5 ppm; outside it a reading is accepted with a confidence
//	         penalty. 1.0–3.0 ppm additionally overlaps recreational-water
//	         treatment levels, which flags a possible wrong-document source.
//
// Confidence and quality scores start at 100 and lose fixed penalties per
// warning; both are clamped to 0–100. See [ValidateReading].
//
// # Provenance
//
// Readings record where and how they were obtained: data source label,
// source URL, extraction method, and free-text notes. The data source label
// "Manual User Entry" is load-bearing: [ShouldReplaceReading] never lets an
// automated extraction displace a manual entry.
package domain
