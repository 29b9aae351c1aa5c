// Package loader reads catalog input handed to the ingestion pipeline: a JSON
// catalog file and, optionally, per-chain CSV file listings exported in the
// chain's own character set.
package loader

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/op/go-logging"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"pricefeed/model"
)

var log = logging.MustGetLogger("loader")

// chainEntry is one chain in a catalog file. Files may be given inline or as a
// CSV listing next to the catalog.
type chainEntry struct {
	model.Chain
	Branches        map[string]string `json:"branches"`
	Files           []model.FileEntry `json:"files"`
	Listing         string            `json:"listing"`
	ListingEncoding string            `json:"listingEncoding"`
}

type catalogFile struct {
	Chains []chainEntry `json:"chains"`
}

// LoadCatalog reads a catalog file. Relative listing paths are resolved
// against the catalog's directory.
func LoadCatalog(path string) ([]model.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open catalog %s: %w", path, err)
	}
	defer f.Close()
	return ReadCatalog(f, filepath.Dir(path))
}

// ErrListingPath rejects a listing that would be read from outside the
// catalog directory.
var ErrListingPath = errors.New("listing path outside catalog directory")

// ReadCatalog decodes a catalog document. baseDir anchors relative listing
// paths.
func ReadCatalog(r io.Reader, baseDir string) ([]model.Catalog, error) {
	return readCatalog(r, baseDir, false)
}

// ReadCatalogWithin is ReadCatalog for documents from untrusted callers:
// listings must be relative paths that stay under baseDir.
func ReadCatalogWithin(r io.Reader, baseDir string) ([]model.Catalog, error) {
	return readCatalog(r, baseDir, true)
}

func readCatalog(r io.Reader, baseDir string, confined bool) ([]model.Catalog, error) {
	var doc catalogFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	catalogs := make([]model.Catalog, 0, len(doc.Chains))
	for _, c := range doc.Chains {
		if strings.TrimSpace(c.Code) == "" {
			log.Warningf("catalog entry without chain code skipped (name %q)", c.Name)
			continue
		}
		files := c.Files
		if c.Listing != "" {
			p := c.Listing
			if confined && !filepath.IsLocal(p) {
				return nil, fmt.Errorf("chain %s: %w: %q", c.Code, ErrListingPath, p)
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(baseDir, p)
			}
			listed, err := LoadListingCSV(p, c.ListingEncoding)
			if err != nil {
				return nil, fmt.Errorf("chain %s: %w", c.Code, err)
			}
			files = append(files, listed...)
		}
		branches := c.Branches
		if branches == nil {
			branches = map[string]string{}
		}
		catalogs = append(catalogs, model.Catalog{Chain: c.Chain, Branches: branches, Files: files})
	}
	log.Infof("catalog loaded: %d chains", len(catalogs))
	return catalogs, nil
}

// LoadListingCSV reads a file listing of "filename,branch" rows. encoding is a
// WHATWG label such as "windows-1255"; blank means UTF-8. A header row whose
// first cell is "filename" (or "file name") is skipped.
func LoadListingCSV(path, encoding string) ([]model.FileEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	return ReadListingCSV(f, encoding)
}

func ReadListingCSV(src io.Reader, encoding string) ([]model.FileEntry, error) {
	in := src
	if encoding != "" {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown listing encoding %q: %w", encoding, err)
		}
		in = transform.NewReader(src, enc.NewDecoder())
	}

	r := csv.NewReader(in)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	entries := make([]model.FileEntry, 0)
	line := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warningf("listing row %d unreadable (skipping): %v", line, err)
			continue
		}
		if line == 1 && isHeader(row) {
			continue
		}
		if len(row) < 2 {
			log.Warningf("listing row %d has %d columns (skipping)", line, len(row))
			continue
		}
		entries = append(entries, model.FileEntry{
			Filename:    strings.TrimSpace(strings.TrimPrefix(row[0], "\uFEFF")),
			BranchToken: strings.TrimSpace(row[1]),
		})
	}
	return entries, nil
}

func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(row[0], "\uFEFF")))
	return first == "filename" || first == "file name"
}
