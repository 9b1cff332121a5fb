// Package bundle exports and imports passport datasets as deterministic TAR
// archives: the portable evidence format for audits and CAS migration.
//
// A bundle holds one entry per dataset under datasets/<cid>, plus an optional
// manifest.json describing the passport the datasets belong to. The archive
// bytes are deterministic: entries are ordered lexicographically by CID and
// TAR headers are normalized, so the same datasets always produce the same
// bundle bytes.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/storage"
)

// FormatVersion is the current manifest schema version.
const FormatVersion = 1

var epochZero = time.Unix(0, 0).UTC()

// Manifest is non-authoritative metadata describing the bundled passport.
// Authority stays with the dataset bytes and their content addresses; import
// never trusts the manifest.
type Manifest struct {
	Version int    `json:"version"`
	TokenID uint64 `json:"tokenId,omitempty"`
	Subject string `json:"subject,omitempty"`
	// Datasets lists every bundled dataset, ordered by content address.
	Datasets []DatasetRef `json:"datasets"`
	// Names maps human labels (e.g. "v1", "statuslist") to content addresses.
	Names []NameRef `json:"names,omitempty"`
}

// DatasetRef describes one bundled dataset.
type DatasetRef struct {
	ContentAddress string `json:"contentAddress"`
	Size           int    `json:"size"`
}

// NameRef labels a content address.
type NameRef struct {
	Name           string `json:"name"`
	ContentAddress string `json:"contentAddress"`
}

// ExportOptions controls export behavior.
type ExportOptions struct {
	// TokenID and Subject annotate the manifest.
	TokenID uint64
	Subject string
	// Names is optional labeling of content addresses.
	Names map[string]string
	// OmitManifest drops manifest.json from the archive.
	OmitManifest bool
}

// Export writes a deterministic bundle containing the datasets at the given
// content addresses. Every dataset's bytes are revalidated against their
// address before entering the archive.
func Export(w io.Writer, cas storage.CAS, addresses []string, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(addresses))
	for _, address := range addresses {
		id, err := cid.Decode(strings.TrimSpace(address))
		if err != nil || !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	ordered := make([]string, 0, len(uniq))
	for s := range uniq {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	tw := tar.NewWriter(w)
	refs := make([]DatasetRef, 0, len(ordered))
	for _, address := range ordered {
		id := uniq[address]
		data, err := cas.Get(id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		computed, err := hashutil.CIDv1RawSHA256CID(data)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if computed.String() != address {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeEntry(tw, "datasets/"+address, data); err != nil {
			_ = tw.Close()
			return err
		}
		refs = append(refs, DatasetRef{ContentAddress: address, Size: len(data)})
	}

	if !opts.OmitManifest {
		manifest := Manifest{
			Version:  FormatVersion,
			TokenID:  opts.TokenID,
			Subject:  opts.Subject,
			Datasets: refs,
		}
		if len(opts.Names) > 0 {
			names := make([]string, 0, len(opts.Names))
			for name := range opts.Names {
				if name == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty name label")
				}
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				address := opts.Names[name]
				if _, ok := uniq[address]; !ok {
					_ = tw.Close()
					return fmt.Errorf("bundle: name %q refers to an unbundled address %q", name, address)
				}
				manifest.Names = append(manifest.Names, NameRef{Name: name, ContentAddress: address})
			}
		}
		encoded, err := json.Marshal(manifest)
		if err != nil {
			_ = tw.Close()
			return err
		}
		encoded = append(encoded, '\n')
		if err := writeEntry(tw, "manifest.json", encoded); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unrecognized archive entries instead of failing.
	// The default is fail-closed.
	IgnoreUnknown bool
}

// Import reads a bundle and stores every dataset into cas. Each dataset's
// bytes are validated against both the entry name and the recomputed content
// address before storage; the manifest is skipped, never trusted.
func Import(r io.Reader, cas storage.CAS, opts ImportOptions) ([]string, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []string

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return nil, err
		}
		name := cleanPath(header.Name)
		if name == "" {
			return nil, fmt.Errorf("bundle: invalid entry path %q", header.Name)
		}
		if header.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, fmt.Errorf("bundle: unexpected entry type %v (%s)", header.Typeflag, name)
		}
		if name == "manifest.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		if !strings.HasPrefix(name, "datasets/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return nil, fmt.Errorf("bundle: unknown entry %s", name)
		}

		address := strings.TrimPrefix(name, "datasets/")
		id, err := cid.Decode(address)
		if err != nil || !id.Defined() {
			return nil, storage.ErrInvalidCID
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		computed, err := hashutil.CIDv1RawSHA256CID(data)
		if err != nil {
			return nil, err
		}
		if computed.String() != id.String() {
			return nil, storage.ErrCIDMismatch
		}
		if _, ok := seen[address]; ok {
			return nil, fmt.Errorf("bundle: duplicate dataset entry %s", address)
		}
		seen[address] = struct{}{}

		stored, err := cas.Put(data)
		if err != nil {
			return nil, err
		}
		if stored.String() != id.String() {
			return nil, storage.ErrCIDMismatch
		}
		imported = append(imported, address)
	}
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	header := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epochZero,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
