// internal/blockchain/solbc/idl/registry.go
package idl

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Entry - запись реестра. Schema == nil означает, что схемы у программы нет
// (встроенная программа с ручным декодером или программа без IDL).
type Entry struct {
	ProgramID solana.PublicKey
	Name      string
	Schema    *IDL
	Builtin   bool
}

// Registry - потокобезопасный кэш схем программ без вытеснения.
type Registry struct {
	entries sync.Map // solana.PublicKey -> *Entry
	group   singleflight.Group
	source  Source
	logger  *zap.Logger
}

// Встроенные программы, декодируемые вручную.
var builtinPrograms = map[solana.PublicKey]string{
	solana.ComputeBudget:                      "ComputeBudget",
	solana.SystemProgramID:                    "System",
	solana.TokenProgramID:                     "Token",
	solana.Token2022ProgramID:                 "Token2022",
	solana.SPLAssociatedTokenAccountProgramID: "AssociatedTokenAccount",
	solana.MemoProgramID:                      "Memo",
}

// NewRegistry создает реестр с предзарегистрированными системными программами.
// source может быть nil: тогда реестр работает только с явно добавленными схемами.
func NewRegistry(source Source, logger *zap.Logger) *Registry {
	r := &Registry{
		source: source,
		logger: logger.Named("idl-registry"),
	}
	for id, name := range builtinPrograms {
		r.entries.Store(id, &Entry{ProgramID: id, Name: name, Builtin: true})
	}
	return r
}

// Get возвращает запись из кэша без обращения к сети.
func (r *Registry) Get(programID solana.PublicKey) (*Entry, bool) {
	v, ok := r.entries.Load(programID)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Put добавляет схему. Повторная вставка того же ключа не меняет первую запись.
func (r *Registry) Put(programID solana.PublicKey, schema *IDL) *Entry {
	if schema != nil && schema.typeIndex == nil {
		schema.index()
	}
	entry := &Entry{ProgramID: programID, Schema: schema}
	if schema != nil {
		entry.Name = schema.ProgramName()
	}
	actual, _ := r.entries.LoadOrStore(programID, entry)
	return actual.(*Entry)
}

// Resolve возвращает запись, при необходимости загружая IDL один раз на программу.
// Отсутствие IDL кэшируется как запись без схемы; временные ошибки не кэшируются.
func (r *Registry) Resolve(ctx context.Context, programID solana.PublicKey) (*Entry, error) {
	if e, ok := r.Get(programID); ok {
		return e, nil
	}
	if r.source == nil {
		return r.Put(programID, nil), nil
	}

	v, err, _ := r.group.Do(programID.String(), func() (interface{}, error) {
		if e, ok := r.Get(programID); ok {
			return e, nil
		}
		schema, err := r.source.Fetch(ctx, programID)
		if err != nil {
			if errors.Is(err, ErrIDLNotFound) {
				return r.Put(programID, nil), nil
			}
			return nil, err
		}
		r.logger.Info("Registered program IDL",
			zap.Stringer("program", programID),
			zap.String("name", schema.ProgramName()),
			zap.Int("instructions", len(schema.Instructions)))
		return r.Put(programID, schema), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// LookupError ищет пользовательскую ошибку (код >= 6000) в закэшированной схеме.
func (r *Registry) LookupError(programID solana.PublicKey, code uint32) (ErrorDef, bool) {
	e, ok := r.Get(programID)
	if !ok || e.Schema == nil {
		return ErrorDef{}, false
	}
	return e.Schema.LookupError(code)
}

// FindError ищет код ошибки во всех закэшированных схемах; используется,
// когда программа, вернувшая ошибку, неизвестна.
func (r *Registry) FindError(code uint32) (ErrorDef, solana.PublicKey, bool) {
	var (
		found   ErrorDef
		program solana.PublicKey
		ok      bool
	)
	r.entries.Range(func(key, value interface{}) bool {
		e := value.(*Entry)
		if e.Schema == nil {
			return true
		}
		if def, hit := e.Schema.LookupError(code); hit {
			found, program, ok = def, key.(solana.PublicKey), true
			return false
		}
		return true
	})
	return found, program, ok
}

// ProgramName возвращает имя программы, если оно известно.
func (r *Registry) ProgramName(programID solana.PublicKey) string {
	if e, ok := r.Get(programID); ok {
		return e.Name
	}
	return ""
}
