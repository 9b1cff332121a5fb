// Command fides-dpp is the operator CLI for the passport lifecycle: key
// management, issuing, reading, verification, updates, revocation, status
// checks and linkset resolution, all against a local state directory.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fides.dev/dpp/did"
	"fides.dev/dpp/disclosure"
	"fides.dev/dpp/keys"
	"fides.dev/dpp/ledger/localledger"
	"fides.dev/dpp/linkset"
	"fides.dev/dpp/passport"
	"fides.dev/dpp/statuslist"
	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/casconfig"
	"fides.dev/dpp/storage/casregistry"

	_ "fides.dev/dpp/storage/grpccas"
	_ "fides.dev/dpp/storage/ipfs"
	_ "fides.dev/dpp/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "create":
		return cmdCreate(args[1:], out, errOut)
	case "read":
		return cmdRead(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "attest":
		return cmdAttest(args[1:], out, errOut)
	case "update":
		return cmdUpdate(args[1:], out, errOut)
	case "revoke":
		return cmdRevoke(args[1:], out, errOut)
	case "status":
		return cmdStatus(args[1:], out, errOut)
	case "resolve":
		return cmdResolve(args[1:], out, errOut)
	case "disclose":
		return cmdDisclose(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "fides-dpp: digital product passport lifecycle CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fides-dpp key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  fides-dpp key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  fides-dpp key list")
	fmt.Fprintln(w, "  fides-dpp key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  fides-dpp create --product-id <id> --product-name <name> --granularity <class|batch|item> --signer <name> [--signer-role <role>] [--batch <n>] [--serial <n>] [--manufacturer <name>] [--account <acct>] [--public K=V ...] [--restricted K=V ...]")
	fmt.Fprintln(w, "  fides-dpp read --token <id> [--version <n>]")
	fmt.Fprintln(w, "  fides-dpp verify --token <id>")
	fmt.Fprintln(w, "  fides-dpp attest --token <id> --signer <name> [--version <n>] [--alg ed25519|dilithium3] [--hash sha256|sha512|sha3-256] [--signer-role <role>]")
	fmt.Fprintln(w, "  fides-dpp update --token <id> --product-id <id> --product-name <name> --signer <name> [flags as for create]")
	fmt.Fprintln(w, "  fides-dpp revoke --token <id> (--account <acct> | --signer <name>) [--reason <text>]")
	fmt.Fprintln(w, "  fides-dpp status --credential-id <urn:uuid:...>")
	fmt.Fprintln(w, "  fides-dpp resolve --id <identifier> [--token <id>] [--granularity <g>] [--batch <n>] [--serial <n>] [--base-url <url>]")
	fmt.Fprintln(w, "  fides-dpp disclose --token <id> --key <encoded-key> [--version <n>]")
	fmt.Fprintln(w, "  fides-dpp export --token <id> [--out <file>]")
	fmt.Fprintln(w, "  fides-dpp import [--in <file>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "State flags (accepted by lifecycle commands):")
	fmt.Fprintln(w, "  --state-dir <dir>     state directory (default ~/.fides)")
	fmt.Fprintln(w, "  --backend <name>      CAS backend (default localfs)")
	fmt.Fprintln(w, "  --cas-config <file>   JSON CAS backend config (overrides --backend)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --seed-hex must be 32 bytes (64 hex chars) ed25519 seed")
	fmt.Fprintln(w, "  - keys are stored under ~/.fides/keys/<name> (0600 private key files)")
	fmt.Fprintln(w, "  - the ledger anchors live in <state-dir>/ledger.json")
	fmt.Fprintln(w, "  - create prints the verification link carrying the disclosure key; it is")
	fmt.Fprintln(w, "    shown once and never stored")
	fmt.Fprintln(w, "  - resolve prints an RFC 9264 linkset to stdout")
}

// env bundles the collaborators lifecycle commands run against.
type env struct {
	service *passport.Service
	status  *statuslist.Manager
	lset    *linkset.Generator
	close   func() error
}

// envFlags registers the shared state flags on a subcommand flag set.
type envFlags struct {
	stateDir  string
	backend   string
	casConfig string
	network   string
	baseURL   string
}

func (f *envFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.stateDir, "state-dir", "", "State directory (default ~/.fides)")
	fs.StringVar(&f.backend, "backend", "localfs", "CAS backend")
	fs.StringVar(&f.casConfig, "cas-config", "", "JSON CAS backend config file")
	fs.StringVar(&f.network, "network", "local", "Network name recorded in chain anchors")
	fs.StringVar(&f.baseURL, "base-url", "https://dpp.localhost", "Base URL for resolver links")
}

func (f *envFlags) open() (*env, error) {
	stateDir := f.stateDir
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home dir: %w", err)
		}
		stateDir = filepath.Join(home, ".fides")
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}

	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if f.casConfig != "" {
		cfg, cerr := casconfig.LoadFile(f.casConfig)
		if cerr != nil {
			return nil, cerr
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageCLI, "")
	} else {
		config := map[string]string{}
		if f.backend == "localfs" {
			config["localfs-dir"] = filepath.Join(stateDir, "cas")
		}
		cas, closeFn, err = casregistry.Open(f.backend, casregistry.UsageCLI, config)
	}
	if err != nil {
		return nil, err
	}
	dataset := storage.NewDataset(cas, "")

	chain, err := localledger.Open(filepath.Join(stateDir, "ledger.json"))
	if err != nil {
		return nil, err
	}
	mappings, err := statuslist.NewFileStore(filepath.Join(stateDir, "statuslist.json"))
	if err != nil {
		return nil, err
	}
	status := statuslist.NewManager(mappings, dataset)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	service, err := passport.New(passport.Config{
		Ledger:     chain,
		Dataset:    dataset,
		DIDs:       did.KeyRegistry{},
		StatusList: status,
		Network:    f.network,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	return &env{
		service: service,
		status:  status,
		lset: &linkset.Generator{
			Ledger:  chain,
			BaseURL: f.baseURL,
			Log:     log,
		},
		close: closeFn,
	}, nil
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("field %q is not Key=Value", pair)
		}
		fields[key] = value
	}
	return fields, nil
}

func printJSON(out io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", raw)
	return err
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: fides-dpp key <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: init, derive, list, export")
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool
	fs.StringVar(&name, "name", "", "Identity name")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed (64 hex chars)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	ks, err := keys.Open("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		seed, err = keys.ParseSeedHex(seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	issuerDID, path, err := ks.InitRoot(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", issuerDID)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool
	fs.StringVar(&from, "from", "", "Root identity name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. issuer, auditor)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}

	ks, err := keys.Open("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerDID, path, err := ks.DeriveRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", issuerDID)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.Open("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Name)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string
	fs.StringVar(&name, "name", "", "Identity name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports the derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, err := keys.Open("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	issuerDID, err := ks.Export(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, issuerDID)
	return 0
}

// createFlags holds the passport-content flags shared by create and update.
type createFlags struct {
	productID    string
	productName  string
	manufacturer string
	manuDID      string
	granularity  string
	batch        string
	serial       string
	account      string
	signer       string
	signerRole   string
	public       stringList
	restricted   stringList
	claims       stringList
	traceability stringList
}

func (f *createFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.productID, "product-id", "", "Product identifier (e.g. GTIN)")
	fs.StringVar(&f.productName, "product-name", "", "Product name")
	fs.StringVar(&f.manufacturer, "manufacturer", "", "Manufacturer name")
	fs.StringVar(&f.manuDID, "manufacturer-did", "", "Manufacturer DID")
	fs.StringVar(&f.granularity, "granularity", "", "Granularity: class, batch or item")
	fs.StringVar(&f.batch, "batch", "", "Batch number (granularity batch/item)")
	fs.StringVar(&f.serial, "serial", "", "Serial number (granularity item)")
	fs.StringVar(&f.account, "account", "", "Ledger account (defaults to the signer DID)")
	fs.StringVar(&f.signer, "signer", "", "Stored key name used for signing")
	fs.StringVar(&f.signerRole, "signer-role", "", "Optional role of the signing key")
	fs.Var(&f.public, "public", "Public AnnexIII field Key=Value (repeatable)")
	fs.Var(&f.restricted, "restricted", "Restricted AnnexIII field Key=Value (repeatable)")
	fs.Var(&f.claims, "claim", "Sustainability claim (repeatable)")
	fs.Var(&f.traceability, "trace", "Traceability reference URI (repeatable)")
}

func (f *createFlags) input(signer ed25519.PrivateKey) (passport.CreateInput, error) {
	public, err := parseFields(f.public)
	if err != nil {
		return passport.CreateInput{}, fmt.Errorf("invalid --public: %w", err)
	}
	restricted, err := parseFields(f.restricted)
	if err != nil {
		return passport.CreateInput{}, fmt.Errorf("invalid --restricted: %w", err)
	}

	pub := signer.Public().(ed25519.PublicKey)
	account := f.account
	if account == "" {
		// The public key doubles as the 32-byte ledger account.
		account = "0x" + hex.EncodeToString(pub)
	}

	return passport.CreateInput{
		ProductID:        f.productID,
		ProductName:      f.productName,
		Manufacturer:     passport.Manufacturer{Name: f.manufacturer, DID: f.manuDID},
		Granularity:      f.granularity,
		BatchNumber:      f.batch,
		SerialNumber:     f.serial,
		Claims:           f.claims,
		Traceability:     f.traceability,
		PublicFields:     public,
		RestrictedFields: restricted,
		IssuerPublicKey:  pub,
		Account:          account,
	}, nil
}

func loadSigner(name, role string, errOut io.Writer) (ed25519.PrivateKey, bool) {
	if name == "" {
		fmt.Fprintln(errOut, "missing --signer")
		return nil, false
	}
	ks, err := keys.Open("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	signer, err := ks.SigningKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "load signing key: %v\n", err)
		return nil, false
	}
	return signer, true
}

func cmdCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	var cf createFlags
	ef.register(fs)
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	signer, ok := loadSigner(cf.signer, cf.signerRole, errOut)
	if !ok {
		return 2
	}
	input, err := cf.input(signer)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	result, err := e.service.Create(context.Background(), input, signer)
	if err != nil {
		fmt.Fprintf(errOut, "create: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Token:            %d\n", result.TokenID)
	fmt.Fprintf(out, "Transaction:      %s (block %d)\n", result.TxHash, result.BlockNumber)
	fmt.Fprintf(out, "Credential:       %s\n", result.CredentialID)
	fmt.Fprintf(out, "Content address:  %s\n", result.ContentAddress)
	fmt.Fprintf(out, "Payload hash:     %s\n", result.PayloadHash)
	if result.VerificationLink != "" {
		fmt.Fprintf(out, "Verification key: %s\n", result.VerificationLink)
	}
	return 0
}

func cmdRead(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var tokenID uint64
	var version uint64
	var raw bool
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	fs.Uint64Var(&version, "version", 0, "Version to read (0 means current)")
	fs.BoolVar(&raw, "raw", false, "Print the signed credential instead of the decoded document")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	result, err := e.service.Read(context.Background(), tokenID, uint32(version))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	if raw {
		_, _ = fmt.Fprintln(out, result.Token)
		return 0
	}
	view := struct {
		TokenID        uint64             `json:"tokenId"`
		Version        uint32             `json:"version"`
		Status         string             `json:"status"`
		ContentAddress string             `json:"contentAddress"`
		Issuer         string             `json:"issuer"`
		Document       *passport.Document `json:"document"`
	}{
		TokenID:        tokenID,
		Version:        result.Version,
		Status:         string(result.Anchor.Status),
		ContentAddress: result.ContentAddress,
		Document:       result.Document,
	}
	if result.Claims != nil && result.Claims.VC != nil {
		view.Issuer = result.Claims.VC.Issuer.ID
	}
	if err := printJSON(out, view); err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var tokenID uint64
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	report, err := e.service.Verify(context.Background(), tokenID)
	if err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	if err := printJSON(out, report); err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	if !report.Valid {
		return 1
	}
	return 0
}

// cmdAttest signs the anchored credential bytes with an out-of-band
// attestation key, so a relying party can check the dataset against the
// operator's key without trusting the ledger gateway. The dilithium3 keypair
// is derived from the signer's root seed on every invocation.
func cmdAttest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var tokenID uint64
	var version uint64
	var signerName, signerRole, alg, hashAlg string
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	fs.Uint64Var(&version, "version", 0, "Version to attest (0 means current)")
	fs.StringVar(&signerName, "signer", "", "Stored key name")
	fs.StringVar(&signerRole, "signer-role", "", "Stored key role (ed25519 only)")
	fs.StringVar(&alg, "alg", "ed25519", "Attestation algorithm: ed25519 or dilithium3")
	fs.StringVar(&hashAlg, "hash", "sha3-256", "Payload hash for dilithium3: sha256, sha512 or sha3-256")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}
	if signerName == "" {
		fmt.Fprintln(errOut, "missing --signer")
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	result, err := e.service.Read(context.Background(), tokenID, uint32(version))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	payload := []byte(result.Token)

	view := struct {
		TokenID        uint64 `json:"tokenId"`
		Version        uint32 `json:"version"`
		ContentAddress string `json:"contentAddress"`
		Algorithm      string `json:"algorithm"`
		Hash           string `json:"hash"`
		PublicKey      string `json:"publicKey"`
		Signature      string `json:"signature"`
	}{
		TokenID:        tokenID,
		Version:        result.Version,
		ContentAddress: result.ContentAddress,
		Algorithm:      alg,
	}

	switch alg {
	case "ed25519":
		signer, ok := loadSigner(signerName, signerRole, errOut)
		if !ok {
			return 2
		}
		view.Hash = "sha256"
		view.PublicKey = base64.StdEncoding.EncodeToString(signer.Public().(ed25519.PublicKey))
		view.Signature = keys.SignAnchorEd25519(payload, signer)
	case "dilithium3":
		ks, err := keys.Open("")
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		pk, sk, err := ks.AttestationKeyDilithium3(signerName)
		if err != nil {
			fmt.Fprintf(errOut, "attestation key: %v\n", err)
			return 1
		}
		sig, err := keys.SignAnchorDilithium3(payload, hashAlg, sk)
		if err != nil {
			fmt.Fprintf(errOut, "attest: %v\n", err)
			return 1
		}
		view.Hash = hashAlg
		view.PublicKey = base64.StdEncoding.EncodeToString(pk.Bytes())
		view.Signature = sig
	default:
		fmt.Fprintf(errOut, "unsupported --alg %q\n", alg)
		return 2
	}

	if err := printJSON(out, view); err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	return 0
}

func cmdUpdate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	var cf createFlags
	ef.register(fs)
	cf.register(fs)
	var tokenID uint64
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}

	signer, ok := loadSigner(cf.signer, cf.signerRole, errOut)
	if !ok {
		return 2
	}
	input, err := cf.input(signer)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	result, err := e.service.Update(context.Background(), tokenID, input, signer)
	if err != nil {
		fmt.Fprintf(errOut, "update: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Token:            %d (version %d)\n", result.TokenID, result.Version)
	fmt.Fprintf(out, "Transaction:      %s (block %d)\n", result.TxHash, result.BlockNumber)
	fmt.Fprintf(out, "Credential:       %s\n", result.CredentialID)
	fmt.Fprintf(out, "Content address:  %s\n", result.ContentAddress)
	if result.VerificationLink != "" {
		fmt.Fprintf(out, "Verification key: %s\n", result.VerificationLink)
	}
	return 0
}

func cmdRevoke(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var tokenID uint64
	var reason string
	var account string
	var signerName string
	var signerRole string
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	fs.StringVar(&reason, "reason", "", "Revocation reason")
	fs.StringVar(&account, "account", "", "Issuer ledger account (defaults to the signer's key account)")
	fs.StringVar(&signerName, "signer", "", "Stored key name the account is derived from")
	fs.StringVar(&signerRole, "signer-role", "", "Optional role of the signing key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}
	if account == "" {
		if signerName == "" {
			fmt.Fprintln(errOut, "missing --account (or --signer to derive it)")
			return 2
		}
		signer, ok := loadSigner(signerName, signerRole, errOut)
		if !ok {
			return 2
		}
		account = "0x" + hex.EncodeToString(signer.Public().(ed25519.PublicKey))
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	result, err := e.service.Revoke(context.Background(), tokenID, reason, account)
	if err != nil {
		fmt.Fprintf(errOut, "revoke: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Revoked token %d (tx %s, block %d)\n", result.TokenID, result.TxHash, result.BlockNumber)
	if !result.StatusListUpdated {
		fmt.Fprintln(out, "Status list not updated; the ledger revocation stands")
	}
	return 0
}

func cmdStatus(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var credentialID string
	fs.StringVar(&credentialID, "credential-id", "", "Credential identifier (urn:uuid:...)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if credentialID == "" {
		fmt.Fprintln(errOut, "missing --credential-id")
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	revoked, err := e.status.CheckStatus(context.Background(), credentialID)
	if err != nil {
		fmt.Fprintf(errOut, "status: %v\n", err)
		return 1
	}
	if revoked {
		fmt.Fprintln(out, "revoked")
		return 0
	}
	fmt.Fprintln(out, "active")
	return 0
}

func cmdResolve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var identifier string
	var tokenID uint64
	var granularity string
	var batch string
	var serial string
	var language string
	fs.StringVar(&identifier, "id", "", "Product or subject identifier")
	fs.Uint64Var(&tokenID, "token", 0, "Explicit token identifier")
	fs.StringVar(&granularity, "granularity", "", "Granularity hint: class, batch or item")
	fs.StringVar(&batch, "batch", "", "Batch number")
	fs.StringVar(&serial, "serial", "", "Serial number")
	fs.StringVar(&language, "language", "", "Language tag stamped on the links")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if identifier == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	set, _ := e.lset.Generate(context.Background(), linkset.Request{
		Identifier:   identifier,
		TokenID:      tokenID,
		Granularity:  granularity,
		BatchNumber:  batch,
		SerialNumber: serial,
		Language:     language,
	})
	raw, err := linkset.Marshal(set)
	if err != nil {
		fmt.Fprintf(errOut, "encode linkset: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "%s\n", raw)
	return 0
}

func cmdDisclose(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("disclose", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var tokenID uint64
	var version uint64
	var encodedKey string
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	fs.Uint64Var(&version, "version", 0, "Version to read (0 means current)")
	fs.StringVar(&encodedKey, "key", "", "Disclosure key from the verification link")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}
	if encodedKey == "" {
		fmt.Fprintln(errOut, "missing --key")
		return 2
	}
	key, err := disclosure.DecodeKey(encodedKey)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --key: %v\n", err)
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	result, err := e.service.Read(context.Background(), tokenID, uint32(version))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	if result.Document == nil || result.Document.AnnexIII == nil || result.Document.AnnexIII.Restricted == nil {
		fmt.Fprintln(errOut, "no restricted section on this version")
		return 1
	}
	fields, err := disclosure.Decrypt(result.Document.AnnexIII.Restricted, key)
	if err != nil {
		fmt.Fprintf(errOut, "decrypt: %v\n", err)
		return 1
	}
	if err := printJSON(out, fields); err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var tokenID uint64
	var outPath string
	fs.Uint64Var(&tokenID, "token", 0, "Token identifier")
	fs.StringVar(&outPath, "out", "", "Bundle file to write (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if tokenID == 0 {
		fmt.Fprintln(errOut, "missing --token")
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	var w io.Writer = out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "create %s: %v\n", outPath, err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := e.service.Export(context.Background(), tokenID, w); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if outPath != "" {
		fmt.Fprintf(out, "Exported token %d to %s\n", tokenID, outPath)
	}
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ef envFlags
	ef.register(fs)
	var inPath string
	fs.StringVar(&inPath, "in", "", "Bundle file to read (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, err := ef.open()
	if err != nil {
		fmt.Fprintf(errOut, "open state: %v\n", err)
		return 1
	}
	if e.close != nil {
		defer func() { _ = e.close() }()
	}

	var r io.Reader = os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", inPath, err)
			return 1
		}
		defer f.Close()
		r = f
	}
	imported, err := e.service.Import(context.Background(), r)
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	for _, address := range imported {
		fmt.Fprintln(out, address)
	}
	return 0
}
