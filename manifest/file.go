package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blockberries/facetroute/merkle"
	"github.com/blockberries/facetroute/types"

	"gopkg.in/yaml.v3"
)

// ErrRootMismatch is returned by File.Check when the declared root
// differs from the root rebuilt from the file's routes.
var ErrRootMismatch = errors.New("manifest: declared root does not match routes")

// ErrUnsupportedVersion is returned by File.Decode for a format version
// this package cannot read.
var ErrUnsupportedVersion = errors.New("manifest: unsupported file version")

// File is the on-disk manifest format. All binary values are
// 0x-prefixed hex strings.
type File struct {
	Version uint32      `json:"version" yaml:"version"`
	Epoch   uint64      `json:"epoch" yaml:"epoch"`
	Root    string      `json:"root" yaml:"root"`
	Routes  []FileRoute `json:"routes" yaml:"routes"`
}

// FileRoute is one route entry. Proof is optional on input and always
// written by FileFrom.
type FileRoute struct {
	CallID         string     `json:"callId" yaml:"callId"`
	ModuleAddress  string     `json:"moduleAddress" yaml:"moduleAddress"`
	ModuleCodehash string     `json:"moduleCodehash" yaml:"moduleCodehash"`
	Proof          *FileProof `json:"proof,omitempty" yaml:"proof,omitempty"`
}

// FileProof is the file form of types.Proof.
type FileProof struct {
	Index uint32     `json:"index" yaml:"index"`
	Width uint32     `json:"width" yaml:"width"`
	Steps []FileStep `json:"steps" yaml:"steps"`
}

// FileStep is the file form of types.ProofStep.
type FileStep struct {
	Sibling string `json:"sibling" yaml:"sibling"`
	Left    bool   `json:"left" yaml:"left"`
}

// FileFrom converts a built manifest into its file form, proofs
// included.
func FileFrom(b *Built) *File {
	f := &File{
		Version: b.Manifest.Version,
		Epoch:   b.Manifest.Epoch,
		Root:    b.Manifest.Root.Hex(),
		Routes:  make([]FileRoute, 0, len(b.Manifest.Routes)),
	}
	for _, r := range b.Manifest.Routes {
		fr := FileRoute{
			CallID:         r.CallID.Hex(),
			ModuleAddress:  r.Module.Hex(),
			ModuleCodehash: r.Codehash.Hex(),
		}
		if p, ok := b.Proofs[r.CallID]; ok {
			fp := &FileProof{Index: p.Index, Width: p.Width, Steps: make([]FileStep, len(p.Steps))}
			for i, s := range p.Steps {
				fp.Steps[i] = FileStep{Sibling: s.Sibling.Hex(), Left: s.Left}
			}
			fr.Proof = fp
		}
		f.Routes = append(f.Routes, fr)
	}
	return f
}

// Decoded is the typed content of a File.
type Decoded struct {
	Manifest types.Manifest
	// Proofs holds the proofs present in the file, keyed by CallID.
	Proofs map[types.CallID]types.Proof
}

// Decode parses every hex field. Route order is preserved as written;
// use Check to confirm the declared root.
func (f *File) Decode() (*Decoded, error) {
	if f.Version != types.ManifestVersion {
		return nil, fmt.Errorf("%w: %d, want %d", ErrUnsupportedVersion, f.Version, types.ManifestVersion)
	}
	root, err := types.ParseDigest(f.Root)
	if err != nil {
		return nil, fmt.Errorf("manifest root: %w", err)
	}
	d := &Decoded{
		Manifest: types.Manifest{
			Version: f.Version,
			Epoch:   f.Epoch,
			Root:    root,
			Routes:  make([]types.Route, 0, len(f.Routes)),
		},
		Proofs: make(map[types.CallID]types.Proof),
	}
	for i, fr := range f.Routes {
		r, err := fr.decodeRoute()
		if err != nil {
			return nil, fmt.Errorf("manifest route %d: %w", i, err)
		}
		d.Manifest.Routes = append(d.Manifest.Routes, r)
		if fr.Proof == nil {
			continue
		}
		p, err := fr.Proof.decode()
		if err != nil {
			return nil, fmt.Errorf("manifest route %d (%s): %w", i, r.CallID, err)
		}
		d.Proofs[r.CallID] = p
	}
	return d, nil
}

// Check rebuilds the manifest from the file's routes with h and
// verifies the declared root and any embedded proofs.
func (f *File) Check(h merkle.Hasher) (*Built, error) {
	d, err := f.Decode()
	if err != nil {
		return nil, err
	}
	b := NewBuilder(h)
	built, err := b.Build(d.Manifest.Routes, d.Manifest.Epoch)
	if err != nil {
		return nil, err
	}
	if built.Manifest.Root != d.Manifest.Root {
		return nil, fmt.Errorf("%w: declared %s, computed %s", ErrRootMismatch, d.Manifest.Root, built.Manifest.Root)
	}
	for id, p := range d.Proofs {
		r, _ := built.Manifest.Route(id)
		ok, err := merkle.Verify(b.Hasher(), r, p, built.Manifest.Root)
		if err != nil {
			return nil, fmt.Errorf("manifest proof %s: %w", id, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: proof for %s", ErrRootMismatch, id)
		}
	}
	return built, nil
}

func (fr FileRoute) decodeRoute() (types.Route, error) {
	id, err := types.ParseCallID(fr.CallID)
	if err != nil {
		return types.Route{}, err
	}
	addr, err := types.ParseAddress(fr.ModuleAddress)
	if err != nil {
		return types.Route{}, err
	}
	code, err := types.ParseDigest(fr.ModuleCodehash)
	if err != nil {
		return types.Route{}, err
	}
	return types.Route{CallID: id, Module: addr, Codehash: code}, nil
}

func (fp FileProof) decode() (types.Proof, error) {
	p := types.Proof{Index: fp.Index, Width: fp.Width, Steps: make([]types.ProofStep, len(fp.Steps))}
	for i, s := range fp.Steps {
		sib, err := types.ParseDigest(s.Sibling)
		if err != nil {
			return types.Proof{}, fmt.Errorf("%w: step %d: %v", merkle.ErrMalformedProof, i, err)
		}
		p.Steps[i] = types.ProofStep{Sibling: sib, Left: s.Left}
	}
	return p, nil
}

// Load reads a manifest file. The format is chosen by extension:
// .yaml/.yml is YAML, anything else is JSON.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes manifest data, using filename only to pick the format.
func Parse(data []byte, filename string) (*File, error) {
	var f File
	if isYAML(filename) {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
		return &f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return &f, nil
}

// Marshal encodes f in the format implied by filename.
func Marshal(f *File, filename string) ([]byte, error) {
	if isYAML(filename) {
		return yaml.Marshal(f)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes f to path.
func Save(path string, f *File) error {
	data, err := Marshal(f, path)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
