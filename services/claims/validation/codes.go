// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides claim field validation and the medical code
// reference tables the review tools consult.
//
// The code tables are a demo subset. Production deployments replace them
// with a payer-supplied code service behind the same lookup functions.
package validation

// ICD10Codes maps supported ICD-10 diagnosis codes to descriptions.
var ICD10Codes = map[string]string{
	"Z00.00":   "Encounter for general adult medical examination without abnormal findings",
	"S52.501A": "Unspecified fracture of the lower end of right radius, initial encounter",
	"M25.511":  "Pain in right shoulder",
	"E11.9":    "Type 2 diabetes mellitus without complications",
	"J06.9":    "Acute upper respiratory infection, unspecified",
	"K21.9":    "Gastro-esophageal reflux disease without esophagitis",
	"M79.3":    "Panniculitis, unspecified",
	"I10":      "Essential hypertension",
	"C50.1":    "Malignant neoplasm of central portion of breast",
	"C50.2":    "Malignant neoplasm of upper-inner quadrant of breast",
	"I21.0":    "ST elevation (STEMI) myocardial infarction of anterior wall",
	"I63.1":    "Cerebral infarction due to embolism of precerebral arteries",
	"I63.2":    "Cerebral infarction due to unspecified occlusion of cerebral arteries",
}

// CPTCodes maps supported CPT procedure codes to descriptions.
var CPTCodes = map[string]string{
	"99213": "Office visit, established patient, low complexity",
	"99214": "Office visit, established patient, moderate complexity",
	"99215": "Office visit, established patient, high complexity",
	"92004": "Ophthalmological examination and evaluation",
	"27447": "Arthroplasty, knee, condyle and plateau; medial or lateral compartment",
	"73721": "MRI lower extremity other than joint",
	"36415": "Collection of venous blood by venipuncture",
	"85025": "Blood count; complete (CBC), automated",
}

// CompatibleProcedures maps each diagnosis code to the procedure codes
// considered clinically consistent with it.
var CompatibleProcedures = map[string][]string{
	"Z00.00":   {"99213", "99214", "99215"},
	"S52.501A": {"27447", "73721"},
	"M25.511":  {"99213", "99214", "73721"},
	"E11.9":    {"99213", "99214", "85025"},
	"J06.9":    {"99213", "99214"},
	"K21.9":    {"99213", "99214"},
	"M79.3":    {"99213", "99214"},
	"I10":      {"99213", "99214", "85025"},
	"C50.1":    {"99215", "27447", "73721"},
	"C50.2":    {"99215", "27447", "73721"},
	"I21.0":    {"99215", "27447", "85025"},
	"I63.1":    {"99215", "73721", "85025"},
	"I63.2":    {"99215", "73721", "85025"},
}

// ReferralRequiredProcedures lists procedures that require a referral.
var ReferralRequiredProcedures = map[string]bool{
	"27447": true,
	"73721": true,
	"92004": true,
}

// AuthorizationRequiredProcedures lists procedures that require prior
// authorization.
var AuthorizationRequiredProcedures = map[string]bool{
	"27447": true,
	"73721": true,
}

// ProcedureAmountLimits caps the billable amount per procedure code.
// Claims over the limit raise an amount_limit_exceeded exception.
var ProcedureAmountLimits = map[string]float64{
	"99213": 500,
	"99214": 800,
	"99215": 1200,
	"27447": 25000,
	"73721": 2000,
	"92004": 500,
}

// DefaultAmountLimit applies to procedures without a specific limit.
const DefaultAmountLimit = 50000

// MaxClaimAmount is the hard submission cap in USD.
const MaxClaimAmount = 100000

// DiagnosisDescription returns the description for an ICD-10 code.
//
// Outputs:
//
//	string - The description
//	bool - False if the code is not in the table
func DiagnosisDescription(code string) (string, bool) {
	desc, ok := ICD10Codes[code]
	return desc, ok
}

// ProcedureDescription returns the description for a CPT code.
//
// Outputs:
//
//	string - The description
//	bool - False if the code is not in the table
func ProcedureDescription(code string) (string, bool) {
	desc, ok := CPTCodes[code]
	return desc, ok
}

// CodesCompatible reports whether a procedure is clinically consistent
// with a diagnosis.
func CodesCompatible(diagnosisCode, procedureCode string) bool {
	for _, p := range CompatibleProcedures[diagnosisCode] {
		if p == procedureCode {
			return true
		}
	}
	return false
}

// AmountLimit returns the billable cap for a procedure code.
func AmountLimit(procedureCode string) float64 {
	if limit, ok := ProcedureAmountLimits[procedureCode]; ok {
		return limit
	}
	return DefaultAmountLimit
}
