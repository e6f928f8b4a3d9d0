// internal/blockchain/solbc/idl/fetcher.go
package idl

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

// ErrIDLNotFound - ни один источник не содержит IDL; это штатная ситуация.
var ErrIDLNotFound = errors.New("IDL not found")

var (
	errNotPublished = errors.New("IDL not published")
	errMalformedIDL = errors.New("malformed IDL")
)

const (
	idlSeed = "anchor:idl"
	// discriminator(8) + authority(32) + data_len(4)
	idlHeaderSize  = 8 + 32 + 4
	maxIDLDataSize = 10 << 20
)

// Source загружает IDL программы.
type Source interface {
	Fetch(ctx context.Context, programID solana.PublicKey) (*IDL, error)
}

// Fetcher ищет IDL: локальный файл → on-chain аккаунт → HTTP репозитории.
type Fetcher struct {
	localDir string
	repoURLs []string
	accounts blockchain.AccountReader
	http     *http.Client
	logger   *zap.Logger
}

// NewFetcher создает загрузчик IDL. accounts может быть nil, тогда on-chain поиск пропускается.
func NewFetcher(localDir string, repoURLs []string, accounts blockchain.AccountReader, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		localDir: localDir,
		repoURLs: repoURLs,
		accounts: accounts,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger.Named("idl-fetcher"),
	}
}

// Fetch возвращает ErrIDLNotFound, если IDL нет ни в одном источнике.
// Если хотя бы один источник ответил временной ошибкой, возвращается она.
func (f *Fetcher) Fetch(ctx context.Context, programID solana.PublicKey) (*IDL, error) {
	if schema, err := f.loadLocal(programID); err == nil {
		f.logger.Debug("Loaded IDL from local file", zap.Stringer("program", programID))
		return schema, nil
	}

	var errs []error
	if f.accounts != nil {
		schema, err := f.fetchOnChain(ctx, programID)
		if err == nil {
			f.saveLocal(programID, schema)
			f.logger.Debug("Loaded IDL from on-chain account", zap.Stringer("program", programID))
			return schema, nil
		}
		errs = append(errs, err)
	}

	for _, tmpl := range f.repoURLs {
		url := tmpl
		if strings.Contains(tmpl, "%s") {
			url = fmt.Sprintf(tmpl, programID)
		}
		schema, err := f.fetchFromURL(ctx, url)
		if err == nil {
			f.saveLocal(programID, schema)
			f.logger.Debug("Loaded IDL from repository",
				zap.Stringer("program", programID),
				zap.String("url", url))
			return schema, nil
		}
		errs = append(errs, err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for _, err := range errs {
		if !isAbsent(err) {
			return nil, fmt.Errorf("fetch IDL for program %s: %w", programID, errors.Join(errs...))
		}
	}
	f.logger.Debug("IDL unavailable",
		zap.Stringer("program", programID),
		zap.Error(errors.Join(errs...)))
	return nil, fmt.Errorf("%w for program %s", ErrIDLNotFound, programID)
}

// IDLAddress вычисляет адрес IDL-аккаунта Anchor:
// create_with_seed(find_program_address([], program), "anchor:idl", program).
func IDLAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	base, _, err := solana.FindProgramAddress([][]byte{}, programID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.CreateWithSeed(base, idlSeed, programID)
}

func (f *Fetcher) fetchOnChain(ctx context.Context, programID solana.PublicKey) (*IDL, error) {
	addr, err := IDLAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive IDL address: %w", err)
	}
	account, err := f.accounts.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Value == nil {
		return nil, fmt.Errorf("%w: IDL account %s", blockchain.ErrAccountNotFound, addr)
	}
	schema, err := DecodeIDLAccount(account.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedIDL, err)
	}
	return schema, nil
}

// isAbsent отличает отсутствие IDL от сбоя источника.
func isAbsent(err error) bool {
	return errors.Is(err, blockchain.ErrAccountNotFound) ||
		errors.Is(err, errNotPublished) ||
		errors.Is(err, errMalformedIDL)
}

// DecodeIDLAccount разбирает данные IDL-аккаунта: заголовок и zlib-сжатый JSON.
func DecodeIDLAccount(data []byte) (*IDL, error) {
	if len(data) < idlHeaderSize {
		return nil, fmt.Errorf("invalid IDL account length %d", len(data))
	}
	size := binary.LittleEndian.Uint32(data[40:44])
	if int(size) > len(data)-idlHeaderSize {
		return nil, fmt.Errorf("IDL data length %d exceeds account size", size)
	}

	zr, err := zlib.NewReader(bytes.NewReader(data[idlHeaderSize : idlHeaderSize+int(size)]))
	if err != nil {
		return nil, fmt.Errorf("open IDL zlib stream: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(io.LimitReader(zr, maxIDLDataSize))
	if err != nil {
		return nil, fmt.Errorf("inflate IDL: %w", err)
	}
	return Parse(raw)
}

func (f *Fetcher) fetchFromURL(ctx context.Context, url string) (*IDL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w at %s", errNotPublished, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIDLDataSize))
	if err != nil {
		return nil, err
	}
	schema, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedIDL, err)
	}
	return schema, nil
}

func (f *Fetcher) localPath(programID solana.PublicKey) string {
	return filepath.Join(f.localDir, programID.String()+".json")
}

func (f *Fetcher) loadLocal(programID solana.PublicKey) (*IDL, error) {
	if f.localDir == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(f.localPath(programID))
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// saveLocal кэширует IDL на диск; ошибка записи не мешает декодированию.
func (f *Fetcher) saveLocal(programID solana.PublicKey, schema *IDL) {
	if f.localDir == "" {
		return
	}
	if err := os.MkdirAll(f.localDir, 0o755); err != nil {
		f.logger.Debug("Failed to create IDL dir", zap.Error(err))
		return
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		f.logger.Debug("Failed to encode IDL", zap.Error(err))
		return
	}
	if err := os.WriteFile(f.localPath(programID), data, 0o644); err != nil {
		f.logger.Debug("Failed to save IDL", zap.Error(err))
	}
}
