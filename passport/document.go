package passport

import (
	"encoding/hex"
	"encoding/json"

	"fides.dev/dpp/disclosure"
	"fides.dev/dpp/subjectid"
)

// Manufacturer identifies the economic operator behind a passport.
type Manufacturer struct {
	Name string `json:"name"`
	DID  string `json:"did,omitempty"`
}

// Material is one entry of a product's composition breakdown.
type Material struct {
	Name         string  `json:"name"`
	SharePercent float64 `json:"sharePercent,omitempty"`
	Recycled     bool    `json:"recycled,omitempty"`
}

// AnnexIII splits regulated data into an always-embedded public section and
// an encrypted restricted section, decryptable only with the verification
// key handed out at creation.
type AnnexIII struct {
	Public     map[string]any       `json:"public"`
	Restricted *disclosure.Envelope `json:"restricted,omitempty"`
}

// ChainAnchor embeds the on-ledger linkage inside each credential version,
// forming an immutable backward-linked chain addressed by content hash.
type ChainAnchor struct {
	Network             string `json:"network"`
	IssuerAccount       string `json:"issuerAccount"`
	Version             uint32 `json:"version"`
	PreviousDatasetURI  string `json:"previousDatasetUri,omitempty"`
	PreviousPayloadHash string `json:"previousPayloadHash,omitempty"`
}

// Document is the passport body carried in a credential's subject claim.
type Document struct {
	ProductID    string       `json:"productId"`
	ProductName  string       `json:"productName"`
	Manufacturer Manufacturer `json:"manufacturer"`

	Granularity  subjectid.Granularity `json:"granularity"`
	BatchNumber  string                `json:"batchNumber,omitempty"`
	SerialNumber string                `json:"serialNumber,omitempty"`

	Materials    []Material `json:"materials,omitempty"`
	Claims       []string   `json:"claims,omitempty"`
	Traceability []string   `json:"traceabilityRefs,omitempty"`

	AnnexIII    *AnnexIII    `json:"annexIII,omitempty"`
	ChainAnchor *ChainAnchor `json:"chainAnchor"`
}

// SubjectHash derives the privacy-preserving subject hash for the document,
// or nil when the granularity alone does not identify a subject.
func (d *Document) SubjectHash() *[32]byte {
	hash, ok := subjectid.HashFor(d.ProductID, d.Granularity, d.BatchNumber, d.SerialNumber)
	if !ok {
		return nil
	}
	return &hash
}

// CanonicalSubjectID returns the canonical subject string, or "" when
// undefined for the document's granularity.
func (d *Document) CanonicalSubjectID() string {
	id, ok := subjectid.CanonicalID(d.ProductID, d.Granularity, d.BatchNumber, d.SerialNumber)
	if !ok {
		return ""
	}
	return id
}

func encodeSubject(doc *Document) (json.RawMessage, error) {
	return json.Marshal(doc)
}

func decodeSubject(raw json.RawMessage) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
