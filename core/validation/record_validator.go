package validation

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"medvault/core/fault"
	"medvault/types/ids"
)

//go:embed schemas/record_submission_schema_v1.json
var submissionSchemaV1 []byte

// maxPayloadBytes caps the base64-decoded record payload at 16 MiB.
const maxPayloadBytes = 16 << 20

func schemaLoader() gojsonschema.JSONLoader {
	if path := os.Getenv("MEDVAULT_SCHEMA_PATH"); path != "" {
		return gojsonschema.NewReferenceLoader("file://" + path)
	}
	return gojsonschema.NewBytesLoader(submissionSchemaV1)
}

// RecordSubmission is the decoded shape of a validated submission.
type RecordSubmission struct {
	PatientID  ids.Address
	Title      string
	RecordType string
	Payload    []byte
}

// ValidateSubmission validates a raw record submission JSON body against the
// schema and additional checks, and returns the decoded submission. All
// failures are classified InvalidInput.
func ValidateSubmission(body []byte) (RecordSubmission, error) {
	const op = "validation.ValidateSubmission"

	result, err := gojsonschema.Validate(schemaLoader(), gojsonschema.NewBytesLoader(body))
	if err != nil {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "invalid JSON: %v", err)
	}
	if !result.Valid() {
		errStr := ""
		for _, e := range result.Errors() {
			errStr += e.String() + "; "
		}
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "submission failed schema validation: %s", errStr)
	}

	var raw struct {
		PatientID  string `json:"patientId"`
		Title      string `json:"title"`
		RecordType string `json:"recordType"`
		Payload    string `json:"payload"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "invalid JSON: %v", err)
	}

	patientID, err := ids.Parse(raw.PatientID)
	if err != nil {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "patientId: %v", err)
	}
	if !utf8.ValidString(raw.Title) {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "title is not valid UTF-8")
	}

	payload, err := base64.StdEncoding.DecodeString(raw.Payload)
	if err != nil {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "payload is not valid base64")
	}
	if len(payload) == 0 {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "payload is empty")
	}
	if len(payload) > maxPayloadBytes {
		return RecordSubmission{}, fault.Newf(fault.InvalidInput, op, "payload exceeds %d bytes", maxPayloadBytes)
	}

	return RecordSubmission{
		PatientID:  patientID,
		Title:      raw.Title,
		RecordType: raw.RecordType,
		Payload:    payload,
	}, nil
}

// IsValidRecordType checks if the recordType is allowed.
func IsValidRecordType(recordType string) bool {
	switch recordType {
	case "lab_result", "imaging", "prescription", "discharge_summary", "clinical_note":
		return true
	}
	return false
}
