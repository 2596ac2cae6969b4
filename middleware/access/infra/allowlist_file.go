package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"access-gateway/middleware/access/domain"
)

// FilePersister grava o conjunto dinâmico como JSON em disco.
//
// A gravação é atômica: escreve num temporário do mesmo diretório, faz fsync e
// renomeia por cima do arquivo final.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load(_ context.Context) (domain.DynamicSnapshot, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DynamicSnapshot{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.DynamicSnapshot{}, err
	}

	var snap domain.DynamicSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.DynamicSnapshot{}, fmt.Errorf("decode %s: %w", p.path, err)
	}
	return snap, nil
}

func (p *FilePersister) Save(_ context.Context, snap domain.DynamicSnapshot) error {
	if snap.Addresses == nil {
		snap.Addresses = []domain.AllowlistEntry{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op depois do rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, p.path)
}
