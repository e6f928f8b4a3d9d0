// internal/blockchain/solbc/idl/schema.go
package idl

import (
	"encoding/json"
	"fmt"
)

// IDL - схема Anchor-программы. Поддерживаются legacy-формат (до 0.30)
// и формат 0.30+ с явными дискриминаторами.
type IDL struct {
	Address      string        `json:"address,omitempty"`
	Version      string        `json:"version,omitempty"`
	Name         string        `json:"name,omitempty"`
	Metadata     Metadata      `json:"metadata"`
	Instructions []Instruction `json:"instructions"`
	Types        []TypeDef     `json:"types,omitempty"`
	Errors       []ErrorDef    `json:"errors,omitempty"`

	typeIndex map[string]*TypeDef
}

// Metadata is part of the IDL
type Metadata struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Spec    string `json:"spec,omitempty"`
	Address string `json:"address,omitempty"`
}

// Instruction описывает одну инструкцию программы.
type Instruction struct {
	Name          string        `json:"name"`
	Discriminator []int         `json:"discriminator,omitempty"`
	Accounts      []AccountItem `json:"accounts"`
	Args          []Field       `json:"args"`
}

// AccountItem - аккаунт инструкции или вложенная группа аккаунтов.
type AccountItem struct {
	Name     string        `json:"name"`
	IsMut    bool          `json:"isMut,omitempty"`
	IsSigner bool          `json:"isSigner,omitempty"`
	Writable bool          `json:"writable,omitempty"`
	Signer   bool          `json:"signer,omitempty"`
	Optional bool          `json:"optional,omitempty"`
	Accounts []AccountItem `json:"accounts,omitempty"`
}

// Field - именованное поле аргумента или структуры.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// TypeDef - пользовательский тип из секции types.
type TypeDef struct {
	Name string      `json:"name"`
	Type TypeDefBody `json:"type"`
}

// TypeDefBody - тело struct/enum/alias.
type TypeDefBody struct {
	Kind     string    `json:"kind"`
	Fields   Fields    `json:"fields,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
	Alias    *Type     `json:"alias,omitempty"`
}

// Variant - вариант enum.
type Variant struct {
	Name   string `json:"name"`
	Fields Fields `json:"fields,omitempty"`
}

// ErrorDef - пользовательская ошибка программы.
type ErrorDef struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg,omitempty"`
}

// Fields - именованные поля или кортеж типов.
type Fields []Field

// UnmarshalJSON принимает и [{name,type}], и [type, type].
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, 0, len(raw))
	for i, item := range raw {
		var named struct {
			Name string          `json:"name"`
			Type json.RawMessage `json:"type"`
		}
		if err := json.Unmarshal(item, &named); err == nil && named.Name != "" && len(named.Type) > 0 {
			var t Type
			if err := json.Unmarshal(named.Type, &t); err != nil {
				return fmt.Errorf("field %s: %w", named.Name, err)
			}
			out = append(out, Field{Name: named.Name, Type: t})
			continue
		}
		var t Type
		if err := json.Unmarshal(item, &t); err != nil {
			return fmt.Errorf("tuple field %d: %w", i, err)
		}
		out = append(out, Field{Name: fmt.Sprintf("%d", i), Type: t})
	}
	*f = out
	return nil
}

// Parse разбирает JSON IDL и строит индексы.
func Parse(data []byte) (*IDL, error) {
	var schema IDL
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse IDL: %w", err)
	}
	if len(schema.Instructions) == 0 {
		return nil, fmt.Errorf("parse IDL: no instructions")
	}
	schema.index()
	return &schema, nil
}

func (i *IDL) index() {
	i.typeIndex = make(map[string]*TypeDef, len(i.Types))
	for n := range i.Types {
		i.typeIndex[i.Types[n].Name] = &i.Types[n]
	}
}

// ProgramName возвращает имя программы из любого формата.
func (i *IDL) ProgramName() string {
	if i.Metadata.Name != "" {
		return i.Metadata.Name
	}
	return i.Name
}

// LookupType ищет пользовательский тип по имени.
func (i *IDL) LookupType(name string) (*TypeDef, bool) {
	if i.typeIndex != nil {
		t, ok := i.typeIndex[name]
		return t, ok
	}
	for n := range i.Types {
		if i.Types[n].Name == name {
			return &i.Types[n], true
		}
	}
	return nil, false
}

// LookupError ищет ошибку программы по коду.
func (i *IDL) LookupError(code uint32) (ErrorDef, bool) {
	for _, e := range i.Errors {
		if e.Code == code {
			return e, true
		}
	}
	return ErrorDef{}, false
}

// flattenAccounts разворачивает вложенные группы аккаунтов в плоский порядок.
func flattenAccounts(items []AccountItem) []AccountItem {
	var out []AccountItem
	for _, it := range items {
		if len(it.Accounts) > 0 {
			out = append(out, flattenAccounts(it.Accounts)...)
			continue
		}
		out = append(out, it)
	}
	return out
}
