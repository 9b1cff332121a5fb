// Package passport implements the passport lifecycle: single-phase and
// two-phase creation, reads with historical-version traversal, verification
// against the ledger anchor, updates forming a backward-linked version chain,
// and revocation.
//
// The lifecycle composes the leaf codecs with the external collaborators
// (ledger, content-addressed storage, identity registry) injected at
// construction. All steps inside one call are strictly sequential; shared
// state is limited to the session store, the status-list cache and the schema
// cache, each with its own discipline.
package passport

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fides.dev/dpp/credential"
	"fides.dev/dpp/did"
	"fides.dev/dpp/disclosure"
	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/ledger"
	"fides.dev/dpp/registry"
	"fides.dev/dpp/statuslist"
	"fides.dev/dpp/storage"
	"fides.dev/dpp/subjectid"
)

// DefaultDatasetType is anchored on the ledger when no type is configured.
const DefaultDatasetType = "dpp"

// Config wires a Service. Ledger, Dataset and DIDs are required; Anagrafica,
// StatusList and Schemas are optional collaborators whose absence degrades
// the corresponding feature.
type Config struct {
	Ledger     ledger.Ledger
	Dataset    *storage.Dataset
	DIDs       did.Registry
	Anagrafica registry.Anagrafica
	StatusList *statuslist.Manager
	Schemas    *credential.SchemaValidator

	Sessions   SessionStore
	SessionTTL time.Duration

	// Network names the chain the anchors live on, embedded in each
	// credential's chain-anchor record.
	Network string
	// DatasetType tags anchors on the ledger.
	DatasetType string
	// SchemaID, when set, is declared as credentialSchema on every issued
	// credential.
	SchemaID string
	// VerificationLinkTemplate renders the out-of-band link carrying the
	// disclosure key; "{key}" is replaced by the encoded key.
	VerificationLinkTemplate string

	Logger *slog.Logger
	Now    func() time.Time
}

// Service is the lifecycle orchestrator.
type Service struct {
	ledger     ledger.Ledger
	dataset    *storage.Dataset
	dids       did.Registry
	anagrafica registry.Anagrafica
	status     *statuslist.Manager
	schemas    *credential.SchemaValidator
	sessions   SessionStore

	network     string
	datasetType string
	schemaID    string
	linkTmpl    string
	sessionTTL  time.Duration

	log *slog.Logger
	now func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("passport: Config.Ledger is required")
	}
	if cfg.Dataset == nil {
		return nil, fmt.Errorf("passport: Config.Dataset is required")
	}
	if cfg.DIDs == nil {
		return nil, fmt.Errorf("passport: Config.DIDs is required")
	}
	s := &Service{
		ledger:      cfg.Ledger,
		dataset:     cfg.Dataset,
		dids:        cfg.DIDs,
		anagrafica:  cfg.Anagrafica,
		status:      cfg.StatusList,
		schemas:     cfg.Schemas,
		sessions:    cfg.Sessions,
		network:     cfg.Network,
		datasetType: cfg.DatasetType,
		schemaID:    cfg.SchemaID,
		linkTmpl:    cfg.VerificationLinkTemplate,
		sessionTTL:  cfg.SessionTTL,
		log:         cfg.Logger,
		now:         cfg.Now,
	}
	if s.sessions == nil {
		s.sessions = NewMemSessionStore()
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = DefaultSessionTTL
	}
	if s.datasetType == "" {
		s.datasetType = DefaultDatasetType
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// CreateInput is the form input for creation. Exactly one issuer path is
// used: IssuerDID for a registered identity (checked for verification status
// and account authorization), or IssuerPublicKey for the local key-based
// path.
type CreateInput struct {
	ProductID    string
	ProductName  string
	Manufacturer Manufacturer

	Granularity  string
	BatchNumber  string
	SerialNumber string

	Materials    []Material
	Claims       []string
	Traceability []string

	// PublicFields and RestrictedFields populate the AnnexIII block; the
	// restricted section is encrypted under a fresh verification key.
	PublicFields     map[string]any
	RestrictedFields map[string]any

	IssuerDID       string
	IssuerPublicKey []byte
	// Account is the ledger account anchoring the passport.
	Account string
}

// CreateResult reports a completed single-phase creation.
type CreateResult struct {
	TokenID          uint64
	TxHash           string
	BlockNumber      uint64
	Version          uint32
	CredentialID     string
	ContentAddress   string
	GatewayURL       string
	PayloadHash      string
	VerificationLink string
}

// Create issues, uploads and anchors a passport in one call, signing with
// the caller-held key.
func (s *Service) Create(ctx context.Context, input CreateInput, signer ed25519.PrivateKey) (*CreateResult, error) {
	granularity, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	issuerID, _, err := s.resolveIssuer(ctx, input)
	if err != nil {
		return nil, err
	}

	doc, key, err := s.buildDocument(input, granularity, issuerID, &ChainAnchor{
		Network:       s.network,
		IssuerAccount: input.Account,
		Version:       1,
	})
	if err != nil {
		return nil, err
	}

	token, claims, err := s.issue(ctx, doc, issuerID, input.Manufacturer.Name, func(signingInput string) (string, error) {
		return credential.SignEdDSA(signingInput, signer)
	})
	if err != nil {
		return nil, err
	}

	upload, err := s.dataset.UploadText(ctx, token)
	if err != nil {
		return nil, wrapError(KindCollaborator, RuleStorageFailed, "upload credential", err)
	}

	payloadHash := hashutil.Digest([]byte(token))
	receipt, err := s.ledger.RegisterPassport(ctx, ledger.Registration{
		DatasetURI:    upload.GatewayURL,
		PayloadHash:   payloadHash,
		DatasetType:   s.datasetType,
		Granularity:   granularity,
		SubjectIDHash: doc.SubjectHash(),
	}, input.Account)
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "register passport", err)
	}
	if err := ledger.AwaitConfirmation(ctx, s.ledger, receipt.TxHash); err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "confirm registration", err)
	}

	s.index(ctx, registry.IndexEntry{TokenID: receipt.TokenID, ProductID: input.ProductID, IssuerDID: issuerID})

	link, err := s.verificationLink(key)
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		TokenID:          receipt.TokenID,
		TxHash:           receipt.TxHash,
		BlockNumber:      receipt.BlockNumber,
		Version:          1,
		CredentialID:     claims.ID,
		ContentAddress:   upload.ContentAddress,
		GatewayURL:       upload.GatewayURL,
		PayloadHash:      upload.ContentHash,
		VerificationLink: link,
	}, nil
}

// validate rejects malformed input before any I/O.
func (s *Service) validate(input CreateInput) (subjectid.Granularity, error) {
	if strings.TrimSpace(input.ProductID) == "" {
		return "", newError(KindValidation, RuleMissingProductID, "product id is required")
	}
	if strings.TrimSpace(input.ProductName) == "" {
		return "", newError(KindValidation, RuleMissingProductName, "product name is required")
	}
	granularity, err := subjectid.ParseGranularity(input.Granularity)
	if err != nil {
		return "", wrapError(KindValidation, RuleBadGranularity, fmt.Sprintf("granularity %q is not one of ProductClass, Batch, Item", input.Granularity), err)
	}
	switch granularity {
	case subjectid.Batch:
		if strings.TrimSpace(input.BatchNumber) == "" {
			return "", newError(KindValidation, RuleMissingDiscriminant, "batch number is required for Batch granularity")
		}
	case subjectid.Item:
		if strings.TrimSpace(input.SerialNumber) == "" {
			return "", newError(KindValidation, RuleMissingDiscriminant, "serial number is required for Item granularity")
		}
	}
	if input.IssuerDID == "" && input.IssuerPublicKey == nil {
		return "", newError(KindValidation, RuleMissingIssuer, "an issuer DID or a public key is required")
	}
	return granularity, nil
}

// resolveIssuer returns the issuer identifier and, for registered DIDs, the
// identity after authorization checks.
func (s *Service) resolveIssuer(ctx context.Context, input CreateInput) (string, *did.Identity, error) {
	if input.IssuerDID != "" {
		identity, err := s.dids.GetIssuerIdentity(ctx, input.IssuerDID)
		if err != nil {
			return "", nil, wrapError(KindCollaborator, RuleStorageFailed, "resolve issuer identity", err)
		}
		if identity == nil {
			return "", nil, newError(KindAuthorization, RuleIssuerUnknown, fmt.Sprintf("issuer %q is not registered", input.IssuerDID))
		}
		if identity.Status != did.StatusVerified {
			return "", nil, newError(KindAuthorization, RuleIssuerUnverified, fmt.Sprintf("issuer %q is not verified (status %s)", input.IssuerDID, identity.Status))
		}
		authorized, err := s.dids.IsAccountAuthorized(ctx, input.IssuerDID, input.Account, s.network)
		if err != nil {
			return "", nil, wrapError(KindCollaborator, RuleStorageFailed, "check account authorization", err)
		}
		if !authorized {
			return "", nil, newError(KindAuthorization, RuleAccountUnauthorized, fmt.Sprintf("account %q is not authorized for %q on %q", input.Account, input.IssuerDID, s.network))
		}
		return input.IssuerDID, identity, nil
	}

	if len(input.IssuerPublicKey) != ed25519.PublicKeySize {
		return "", nil, newError(KindValidation, RuleBadPublicKey, fmt.Sprintf("issuer public key must be %d bytes, got %d", ed25519.PublicKeySize, len(input.IssuerPublicKey)))
	}
	keyDID, err := did.KeyDID(input.IssuerPublicKey)
	if err != nil {
		return "", nil, wrapError(KindValidation, RuleBadPublicKey, "derive key DID", err)
	}
	return keyDID, nil, nil
}

// buildDocument assembles the document body and, when restricted fields are
// present, encrypts them under a fresh verification key.
func (s *Service) buildDocument(input CreateInput, granularity subjectid.Granularity, issuerID string, anchor *ChainAnchor) (*Document, []byte, error) {
	doc := &Document{
		ProductID:    input.ProductID,
		ProductName:  input.ProductName,
		Manufacturer: input.Manufacturer,
		Granularity:  granularity,
		BatchNumber:  input.BatchNumber,
		SerialNumber: input.SerialNumber,
		Materials:    input.Materials,
		Claims:       input.Claims,
		Traceability: input.Traceability,
		ChainAnchor:  anchor,
	}
	if doc.Manufacturer.DID == "" {
		doc.Manufacturer.DID = issuerID
	}

	if len(input.PublicFields) == 0 && len(input.RestrictedFields) == 0 {
		return doc, nil, nil
	}

	annex := &AnnexIII{Public: input.PublicFields}
	if annex.Public == nil {
		annex.Public = map[string]any{}
	}
	var key []byte
	if len(input.RestrictedFields) > 0 {
		var err error
		key, err = disclosure.NewKey()
		if err != nil {
			return nil, nil, wrapError(KindInternal, RuleInternal, "generate verification key", err)
		}
		env, err := disclosure.Encrypt(input.RestrictedFields, key)
		if err != nil {
			return nil, nil, wrapError(KindInternal, RuleInternal, "encrypt restricted section", err)
		}
		annex.Restricted = env
	}
	doc.AnnexIII = annex
	return doc, key, nil
}

// issue builds claims for the document, assigns a status-list entry when a
// manager is configured, and signs through the supplied sign func.
func (s *Service) issue(ctx context.Context, doc *Document, issuerID, issuerName string, sign func(signingInput string) (string, error)) (string, *credential.Claims, error) {
	claims, err := s.buildClaims(ctx, doc, issuerID, issuerName)
	if err != nil {
		return "", nil, err
	}
	unsigned, err := credential.Build(claims)
	if err != nil {
		return "", nil, wrapError(KindInternal, RuleInternal, "build credential", err)
	}
	token, err := sign(unsigned.SigningInput)
	if err != nil {
		return "", nil, wrapError(KindInternal, RuleInternal, "sign credential", err)
	}
	return token, claims, nil
}

func (s *Service) buildClaims(ctx context.Context, doc *Document, issuerID, issuerName string) (*credential.Claims, error) {
	raw, err := encodeSubject(doc)
	if err != nil {
		return nil, wrapError(KindInternal, RuleInternal, "encode document", err)
	}
	subject := doc.CanonicalSubjectID()
	if subject == "" {
		subject = doc.ProductID
	}
	var schema *credential.SchemaRef
	if s.schemaID != "" {
		schema = &credential.SchemaRef{ID: s.schemaID, Type: "JsonSchema"}
	}
	claims, err := credential.NewClaims(credential.Issuer{ID: issuerID, Name: issuerName}, subject, raw, schema, nil, s.now())
	if err != nil {
		return nil, wrapError(KindInternal, RuleInternal, "build claims", err)
	}

	if s.status != nil {
		entry, err := s.status.AssignIndex(ctx, issuerID, claims.ID)
		if errors.Is(err, statuslist.ErrExhausted) {
			return nil, wrapError(KindExhausted, RuleStatusListFull, fmt.Sprintf("status list for issuer %q is exhausted", issuerID), err)
		}
		if err != nil {
			return nil, wrapError(KindCollaborator, RuleStorageFailed, "assign status-list index", err)
		}
		encoded, err := json.Marshal(entry)
		if err != nil {
			return nil, wrapError(KindInternal, RuleInternal, "encode status entry", err)
		}
		claims.VC.CredentialStatus = encoded
	}
	return claims, nil
}

func (s *Service) verificationLink(key []byte) (string, error) {
	if key == nil {
		return "", nil
	}
	if s.linkTmpl == "" {
		return disclosure.EncodeKey(key), nil
	}
	link, err := disclosure.VerificationLink(s.linkTmpl, key)
	if err != nil {
		return "", wrapError(KindInternal, RuleInternal, "render verification link", err)
	}
	return link, nil
}

// index records the passport in the anagrafica, best effort.
func (s *Service) index(ctx context.Context, entry registry.IndexEntry) {
	if s.anagrafica == nil {
		return
	}
	if err := s.anagrafica.IndexPassport(ctx, entry); err != nil {
		s.log.Warn("registry indexing skipped",
			slog.Uint64("token", entry.TokenID),
			slog.String("product", entry.ProductID),
			slog.String("error", err.Error()))
	}
}

func addressFromURI(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		uri = uri[i+1:]
	}
	return uri
}
