// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// structValidator evaluates the submission's binding tags outside an
// HTTP request, so claims injected without passing through gin get the
// same structural treatment.
var structValidator = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

var (
	patientNamePattern  = regexp.MustCompile(`^[A-Za-z\s\-'.]+$`)
	identifierPattern   = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	npiPattern          = regexp.MustCompile(`^\d{10}$`)
	policyNumberPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

// MandatoryFields lists the intake fields a claim cannot be processed
// without. A claim missing any of these fails intake outright.
var MandatoryFields = []string{
	"patient_name", "patient_id", "insurance_provider", "policy_number",
	"diagnosis_code", "procedure_code", "claim_amount", "service_date",
	"provider_name",
}

// MissingMandatoryFields returns the mandatory field names absent from
// the submission, in MandatoryFields order.
//
// Thread Safety: Safe for concurrent use; the submission is read-only.
func MissingMandatoryFields(sub *datatypes.ClaimSubmission) []string {
	present := map[string]bool{
		"patient_name":       strings.TrimSpace(sub.PatientName) != "",
		"patient_id":         strings.TrimSpace(sub.PatientID) != "",
		"insurance_provider": strings.TrimSpace(sub.InsuranceProvider) != "",
		"policy_number":      strings.TrimSpace(sub.PolicyNumber) != "",
		"diagnosis_code":     strings.TrimSpace(sub.DiagnosisCode) != "",
		"procedure_code":     strings.TrimSpace(sub.ProcedureCode) != "",
		"claim_amount":       sub.ClaimAmount > 0,
		"service_date":       strings.TrimSpace(sub.ServiceDate) != "",
		"provider_name":      strings.TrimSpace(sub.ProviderName) != "",
	}

	var missing []string
	for _, field := range MandatoryFields {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

// ValidateSubmission checks a submission against the full rule set and
// returns all violations found.
//
// Description:
//
//	Runs field-format checks (name, identifiers, NPI), code-table checks
//	(ICD-10, CPT, compatibility), the amount cap, and the service-date
//	window. An empty slice means the submission is valid.
//
// Inputs:
//
//	sub - The submission to validate
//
// Outputs:
//
//	[]string - Human-readable violation messages (empty when valid)
func ValidateSubmission(sub *datatypes.ClaimSubmission) []string {
	var errs []string

	if missing := MissingMandatoryFields(sub); len(missing) > 0 {
		errs = append(errs, fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
		return errs
	}

	if !ValidPatientName(sub.PatientName) {
		errs = append(errs, "patient name contains invalid characters")
	}
	if !ValidPatientID(sub.PatientID) {
		errs = append(errs, "patient ID format is invalid")
	}
	if !ValidPolicyNumber(sub.PolicyNumber) {
		errs = append(errs, "policy number format is invalid")
	}
	if _, ok := DiagnosisDescription(sub.DiagnosisCode); !ok {
		errs = append(errs, fmt.Sprintf("invalid ICD-10 diagnosis code: %s", sub.DiagnosisCode))
	}
	if _, ok := ProcedureDescription(sub.ProcedureCode); !ok {
		errs = append(errs, fmt.Sprintf("invalid CPT procedure code: %s", sub.ProcedureCode))
	}
	if sub.ClaimAmount > MaxClaimAmount {
		errs = append(errs, fmt.Sprintf("claim amount exceeds maximum limit ($%d)", MaxClaimAmount))
	}
	if sub.ProviderNPI != "" && !ValidNPI(sub.ProviderNPI) {
		errs = append(errs, "NPI format is invalid (must be 10 digits)")
	}
	if day, err := sub.ServiceDay(); err != nil {
		errs = append(errs, "service date is not a valid YYYY-MM-DD date")
	} else if !ValidServiceDate(day) {
		errs = append(errs, "service date is invalid (cannot be in the future or more than 1 year old)")
	}

	return errs
}

// StructuralErrors runs the submission's binding tags and returns one
// message per violated rule. An empty slice means the struct is well
// formed; semantic checks (code tables, amount caps, date windows) are
// ValidateSubmission's job.
func StructuralErrors(sub *datatypes.ClaimSubmission) []string {
	err := structValidator.Struct(sub)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{fmt.Sprintf("submission is structurally invalid: %v", err)}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("field %s fails rule %q", fe.Field(), fe.Tag()))
	}
	return msgs
}

// ValidPatientName reports whether a patient name is well formed.
func ValidPatientName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 2 && patientNamePattern.MatchString(name)
}

// ValidPatientID reports whether a patient identifier is well formed.
func ValidPatientID(id string) bool {
	id = strings.TrimSpace(id)
	return len(id) >= 3 && identifierPattern.MatchString(id)
}

// ValidPolicyNumber reports whether a policy number is well formed.
func ValidPolicyNumber(policy string) bool {
	policy = strings.TrimSpace(policy)
	return len(policy) >= 5 && policyNumberPattern.MatchString(policy)
}

// ValidNPI reports whether an NPI is exactly 10 digits.
func ValidNPI(npi string) bool {
	return npiPattern.MatchString(strings.TrimSpace(npi))
}

// ValidServiceDate reports whether a service date falls within the
// accepted window: not in the future and at most one year old.
func ValidServiceDate(day time.Time) bool {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	oneYearAgo := today.AddDate(-1, 0, 0)
	return !day.After(today) && !day.Before(oneYearAgo)
}
