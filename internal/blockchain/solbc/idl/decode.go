// internal/blockchain/solbc/idl/decode.go
package idl

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"unicode"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const maxTypeDepth = 32

var (
	ErrUnknownDiscriminator = errors.New("unknown instruction discriminator")
	ErrTrailingData         = errors.New("trailing instruction data")
)

// NamedAccount - аккаунт инструкции с именем из IDL.
type NamedAccount struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// DecodedInstruction - результат декодирования по схеме.
type DecodedInstruction struct {
	Name     string                 `json:"name"`
	Args     map[string]interface{} `json:"args"`
	Accounts []NamedAccount         `json:"accounts"`
}

// CalculateDiscriminator вычисляет дискриминатор Anchor: sha256("global:<snake_name>")[:8].
func CalculateDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte("global:" + toSnakeCase(name)))
	return hash[:8]
}

// DiscriminatorBytes возвращает дискриминатор инструкции: явный (0.30+) или вычисленный.
func (ix *Instruction) DiscriminatorBytes() []byte {
	if len(ix.Discriminator) > 0 {
		out := make([]byte, len(ix.Discriminator))
		for i, b := range ix.Discriminator {
			out[i] = byte(b)
		}
		return out
	}
	return CalculateDiscriminator(ix.Name)
}

// FindInstruction ищет инструкцию по префиксу данных.
func (i *IDL) FindInstruction(data []byte) (*Instruction, error) {
	for n := range i.Instructions {
		disc := i.Instructions[n].DiscriminatorBytes()
		if len(data) >= len(disc) && bytes.Equal(data[:len(disc)], disc) {
			return &i.Instructions[n], nil
		}
	}
	return nil, ErrUnknownDiscriminator
}

// DecodeInstruction декодирует аргументы borsh и сопоставляет имена аккаунтов.
func (i *IDL) DecodeInstruction(data []byte, accounts []*solana.AccountMeta) (*DecodedInstruction, error) {
	ix, err := i.FindInstruction(data)
	if err != nil {
		return nil, err
	}

	dec := bin.NewBorshDecoder(data[len(ix.DiscriminatorBytes()):])
	args := make(map[string]interface{}, len(ix.Args))
	for _, arg := range ix.Args {
		v, err := i.decodeValue(dec, arg.Type, 0)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", ix.Name, arg.Name, err)
		}
		args[arg.Name] = v
	}
	if dec.Remaining() > 0 {
		return nil, fmt.Errorf("%s: %w (%d bytes)", ix.Name, ErrTrailingData, dec.Remaining())
	}

	return &DecodedInstruction{
		Name:     ix.Name,
		Args:     args,
		Accounts: nameAccounts(ix.Accounts, accounts),
	}, nil
}

// nameAccounts сопоставляет аккаунты по позиции; лишние получают имя "remaining_N".
func nameAccounts(items []AccountItem, metas []*solana.AccountMeta) []NamedAccount {
	flat := flattenAccounts(items)
	out := make([]NamedAccount, 0, len(metas))
	for n, meta := range metas {
		name := fmt.Sprintf("remaining_%d", n-len(flat))
		if n < len(flat) {
			name = flat[n].Name
		}
		out = append(out, NamedAccount{
			Name:       name,
			Address:    meta.PublicKey.String(),
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})
	}
	return out
}

func (i *IDL) decodeValue(dec *bin.Decoder, t Type, depth int) (interface{}, error) {
	if depth > maxTypeDepth {
		return nil, errors.New("type nesting too deep")
	}
	switch {
	case t.Primitive != "":
		return decodePrimitive(dec, t.Primitive)

	case t.Vec != nil:
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return nil, err
		}
		if int(n) > dec.Remaining() {
			return nil, fmt.Errorf("vec length %d exceeds remaining %d bytes", n, dec.Remaining())
		}
		return i.decodeSeq(dec, *t.Vec, int(n), depth)

	case t.Option != nil:
		tag, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			return nil, nil
		}
		return i.decodeValue(dec, *t.Option, depth+1)

	case t.COption != nil:
		tag, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			return nil, nil
		}
		return i.decodeValue(dec, *t.COption, depth+1)

	case t.Array != nil:
		return i.decodeSeq(dec, *t.Array, t.ArrayLen, depth)

	case t.Defined != "":
		def, ok := i.LookupType(t.Defined)
		if !ok {
			return nil, fmt.Errorf("undefined type %q", t.Defined)
		}
		return i.decodeDefined(dec, def, depth+1)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func (i *IDL) decodeSeq(dec *bin.Decoder, elem Type, n int, depth int) (interface{}, error) {
	if elem.Primitive == "u8" {
		return dec.ReadNBytes(n)
	}
	out := make([]interface{}, 0, n)
	for k := 0; k < n; k++ {
		v, err := i.decodeValue(dec, elem, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (i *IDL) decodeDefined(dec *bin.Decoder, def *TypeDef, depth int) (interface{}, error) {
	switch def.Type.Kind {
	case "struct":
		return i.decodeFields(dec, def.Type.Fields, depth)
	case "enum":
		tag, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(def.Type.Variants) {
			return nil, fmt.Errorf("%s: variant %d out of range", def.Name, tag)
		}
		variant := def.Type.Variants[tag]
		if len(variant.Fields) == 0 {
			return variant.Name, nil
		}
		fields, err := i.decodeFields(dec, variant.Fields, depth)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{variant.Name: fields}, nil
	case "type", "alias":
		if def.Type.Alias == nil {
			return nil, fmt.Errorf("%s: alias without target", def.Name)
		}
		return i.decodeValue(dec, *def.Type.Alias, depth)
	}
	return nil, fmt.Errorf("%s: unsupported kind %q", def.Name, def.Type.Kind)
}

func (i *IDL) decodeFields(dec *bin.Decoder, fields Fields, depth int) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, err := i.decodeValue(dec, f.Type, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func decodePrimitive(dec *bin.Decoder, name string) (interface{}, error) {
	switch name {
	case "bool":
		return dec.ReadBool()
	case "u8":
		return dec.ReadUint8()
	case "i8":
		return dec.ReadInt8()
	case "u16":
		return dec.ReadUint16(bin.LE)
	case "i16":
		return dec.ReadInt16(bin.LE)
	case "u32":
		return dec.ReadUint32(bin.LE)
	case "i32":
		return dec.ReadInt32(bin.LE)
	case "u64":
		return dec.ReadUint64(bin.LE)
	case "i64":
		return dec.ReadInt64(bin.LE)
	case "f32":
		return dec.ReadFloat32(bin.LE)
	case "f64":
		return dec.ReadFloat64(bin.LE)
	case "u128":
		v, err := dec.ReadUint128(bin.LE)
		if err != nil {
			return nil, err
		}
		return v.BigInt(), nil
	case "i128":
		v, err := dec.ReadInt128(bin.LE)
		if err != nil {
			return nil, err
		}
		return v.BigInt(), nil
	case "publicKey", "pubkey":
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		return solana.PublicKeyFromBytes(b).String(), nil
	case "string":
		b, err := readBorshBytes(dec)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case "bytes":
		return readBorshBytes(dec)
	}
	return nil, fmt.Errorf("unsupported primitive %q", name)
}

func readBorshBytes(dec *bin.Decoder) ([]byte, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	if int(n) > dec.Remaining() {
		return nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	return dec.ReadNBytes(int(n))
}

// toSnakeCase повторяет преобразование имён Anchor: initializePosition -> initialize_position.
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for n, r := range runes {
		if unicode.IsUpper(r) {
			if n > 0 && (unicode.IsLower(runes[n-1]) || unicode.IsDigit(runes[n-1])) {
				b.WriteByte('_')
			} else if n > 0 && n+1 < len(runes) && unicode.IsUpper(runes[n-1]) && unicode.IsLower(runes[n+1]) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
