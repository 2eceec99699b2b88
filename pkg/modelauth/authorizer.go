// Copyright 2025 Certen Protocol
//
// Model Authorizer: builds the dynamic model map at startup by querying the
// on-chain model registry, runs the four-step ordered validation per model
// file, and answers per-job admission checks against the resulting map.
// Grounded on pkg/execution/ethereum_contracts.go's read-call pattern
// (now expressed through pkg/chainclient.ModelRegistryContract) and on
// pkg/config's fatal-at-startup Validate() convention.

package modelauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/pkg/chainclient"
)

// ModelEntry is one resolved, validated model in the dynamic model map.
type ModelEntry struct {
	Filename        string
	ModelID         [32]byte
	ExpectedSHA256  [32]byte
	Approved        bool
	NodeAuthorized  bool
}

// Authorizer holds the immutable, process-lifetime dynamic model map built
// at startup.
type Authorizer struct {
	models map[string]*ModelEntry // keyed by filename
	logger *log.Logger
}

// Build runs the four-step ordered startup validation (spec.md section 4.9)
// against every model file found at modelPath (a single file or a
// directory of files), querying registry for each, and returns an
// Authorizer holding the resulting dynamic model map. A validation failure
// returns the exact sentinel error naming the failing condition and the
// model filename; callers must treat this as fatal (distinct exit code,
// never logging the node's private key).
func Build(ctx context.Context, registry *chainclient.ModelRegistryContract, nodeAddress common.Address, modelPath string) (*Authorizer, error) {
	logger := log.New(log.Writer(), "[ModelAuthorizer] ", log.LstdFlags)

	files, err := modelFiles(modelPath)
	if err != nil {
		return nil, fmt.Errorf("list model files at %s: %w", modelPath, err)
	}

	a := &Authorizer{models: make(map[string]*ModelEntry, len(files)), logger: logger}
	for _, path := range files {
		filename := filepath.Base(path)

		modelID, err := registry.ModelIDForFilename(ctx, filename)
		if err != nil {
			return nil, fmt.Errorf("resolve model id for %s: %w", filename, err)
		}

		actualSHA256, err := sha256File(path)
		if err != nil {
			return nil, fmt.Errorf("hash model file %s: %w", filename, err)
		}
		expectedSHA256, err := registry.ExpectedModelHash(ctx, modelID)
		if err != nil {
			return nil, fmt.Errorf("query expected hash for %s: %w", filename, err)
		}
		if actualSHA256 != expectedSHA256 {
			return nil, fmt.Errorf("%w: model %s (got %s, expected %s)", ErrHashMismatch, filename,
				hex.EncodeToString(actualSHA256[:]), hex.EncodeToString(expectedSHA256[:]))
		}

		approved, err := registry.IsModelApproved(ctx, modelID)
		if err != nil {
			return nil, fmt.Errorf("query approval for %s: %w", filename, err)
		}
		if !approved {
			return nil, fmt.Errorf("%w: model %s (id 0x%x)", ErrModelNotApproved, filename, modelID)
		}

		authorized, err := registry.NodeSupportsModel(ctx, nodeAddress, modelID)
		if err != nil {
			return nil, fmt.Errorf("query node authorization for %s: %w", filename, err)
		}
		if !authorized {
			return nil, fmt.Errorf("%w: model %s (id 0x%x)", ErrNodeNotAuthorized, filename, modelID)
		}

		a.models[filename] = &ModelEntry{
			Filename:       filename,
			ModelID:        modelID,
			ExpectedSHA256: expectedSHA256,
			Approved:       approved,
			NodeAuthorized: authorized,
		}
		logger.Printf("model %s authorized (id 0x%x)", filename, modelID)
	}

	return a, nil
}

// NewDisabled builds an Authorizer that accepts filename unconditionally,
// for the ENABLE_MODEL_VALIDATION=false development path (spec.md section
// 4.9's validation toggle). Authorize never fails against modelID.
func NewDisabled(filename, modelID string) *Authorizer {
	var id [32]byte
	copy(id[:], modelID)
	return &Authorizer{
		models: map[string]*ModelEntry{
			filename: {Filename: filename, ModelID: id, Approved: true, NodeAuthorized: true},
		},
		logger: log.New(log.Writer(), "[ModelAuthorizer] ", log.LstdFlags),
	}
}

// Resolve returns the validated entry for filename, or ErrUnknownModel.
func (a *Authorizer) Resolve(filename string) (*ModelEntry, error) {
	entry, ok := a.models[filename]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, filename)
	}
	return entry, nil
}

// Authorize enforces per-job admission: the job's on-chain model_id must
// equal the filename's resolved model_id, per spec.md section 4.9.
func (a *Authorizer) Authorize(filename string, jobModelID [32]byte) error {
	entry, err := a.Resolve(filename)
	if err != nil {
		return err
	}
	if entry.ModelID != jobModelID {
		return fmt.Errorf("%w: job wants 0x%x, node serves %s (0x%x)", ErrUnauthorizedJobClaim, jobModelID, filename, entry.ModelID)
	}
	return nil
}

// Models returns every entry in the dynamic model map, for diagnostics.
func (a *Authorizer) Models() []*ModelEntry {
	out := make([]*ModelEntry, 0, len(a.models))
	for _, m := range a.models {
		out = append(out, m)
	}
	return out
}

func modelFiles(modelPath string) ([]string, error) {
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{modelPath}, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(modelPath, e.Name()))
	}
	return files, nil
}

func sha256File(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
