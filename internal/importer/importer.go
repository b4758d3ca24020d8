// Package importer turns uploaded files into candidates for reconciliation.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// Document is what a parser read from one file.
type Document struct {
	FileSource fingerprint.FileSource
	Candidates []model.Candidate
}

// Parser converts an uploaded file into candidates.
type Parser interface {
	Parse(r io.Reader) (*Document, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers    map[string]Parser
	extensions map[string]string
}

// FileInfo describes a file waiting in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser), extensions: make(map[string]string)}
}

// Register adds a parser and the file extensions it handles by default.
// Panics on duplicate format.
func (r *Registry) Register(p Parser, exts ...string) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
	for _, ext := range exts {
		r.extensions[strings.ToLower(ext)] = key
	}
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForFile picks a parser by file extension, or nil.
func (r *Registry) ForFile(name string) Parser {
	format, ok := r.extensions[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return nil
	}
	return r.parsers[format]
}

// Formats lists registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ChaseParser{}, ".csv")
	r.Register(&SheetParser{}, ".xlsx")
	r.Register(&JSONParser{}, ".json")
	return r
}

const (
	importDir    = "import"
	processedDir = "import/processed"
)

// Scan returns importable files in <repoRoot>/import/.
func Scan(repoRoot string, r *Registry) ([]FileInfo, error) {
	dir := filepath.Join(repoRoot, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || r.ForFile(e.Name()) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(repoRoot, fileName string) error {
	src := filepath.Join(repoRoot, importDir, fileName)
	dstDir := filepath.Join(repoRoot, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// bankKind classifies a bank row from its sign and the bank's own type code.
func bankKind(amount decimal.Decimal, typ string) model.Kind {
	switch strings.ToUpper(strings.TrimSpace(typ)) {
	case "ACCT_XFER", "TRANSFER", "XFER":
		return model.KindTransfer
	case "OWNER_DRAW", "DRAW":
		return model.KindOwnerDraw
	}
	if amount.IsPositive() {
		return model.KindIncome
	}
	return model.KindExpense
}
