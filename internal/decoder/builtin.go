// internal/decoder/builtin.go
package decoder

import (
	"context"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
)

const nativeDecimals uint8 = 9

// ---------- ComputeBudget ----------

func decodeComputeBudget(_ context.Context, _ *Decoder, ix blockchain.Instruction, _ *TempAccounts) (*DecodedInstruction, error) {
	parsed, err := computebudget.ParseInstruction(ix.Data)
	if err != nil {
		return nil, err
	}
	args := map[string]interface{}{}
	switch parsed.Kind {
	case computebudget.RequestUnitsDeprecated:
		args["units"] = parsed.Units
		args["additionalFee"] = parsed.MicroLamports
	case computebudget.RequestHeapFrame:
		args["bytes"] = parsed.HeapBytes
	case computebudget.SetComputeUnitLimit:
		args["units"] = parsed.Units
	case computebudget.SetComputeUnitPrice:
		args["microLamports"] = parsed.MicroLamports
	case computebudget.SetLoadedAccountsLimit:
		args["bytes"] = parsed.AccountsBytes
	}
	return &DecodedInstruction{Name: parsed.Name(), Args: args}, nil
}

// ---------- System ----------

var systemInstructionNames = map[uint32]string{
	0:  "createAccount",
	1:  "assign",
	2:  "transfer",
	3:  "createAccountWithSeed",
	4:  "advanceNonceAccount",
	5:  "withdrawNonceAccount",
	6:  "initializeNonceAccount",
	7:  "authorizeNonceAccount",
	8:  "allocate",
	9:  "allocateWithSeed",
	10: "assignWithSeed",
	11: "transferWithSeed",
	12: "upgradeNonceAccount",
}

func decodeSystem(_ context.Context, _ *Decoder, ix blockchain.Instruction, temp *TempAccounts) (*DecodedInstruction, error) {
	dec := bin.NewBinDecoder(ix.Data)
	kind, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("read system discriminator: %w", err)
	}
	name, ok := systemInstructionNames[kind]
	if !ok {
		return nil, fmt.Errorf("unknown system instruction %d", kind)
	}

	out := &DecodedInstruction{Name: name, Args: map[string]interface{}{}}
	switch kind {
	case 0: // createAccount
		lamports, space, owner, err := readLamportsSpaceOwner(dec)
		if err != nil {
			return nil, err
		}
		out.Args["lamports"], out.Args["space"], out.Args["owner"] = lamports, space, owner.String()
		out.Accounts = nameAccounts(ix.Accounts, "from", "newAccount")
	case 1: // assign
		owner, err := readPublicKey(dec)
		if err != nil {
			return nil, err
		}
		out.Args["owner"] = owner.String()
		out.Accounts = nameAccounts(ix.Accounts, "account")
	case 2: // transfer
		lamports, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		out.Args["lamports"] = lamports
		out.Accounts = nameAccounts(ix.Accounts, "from", "to")
		if len(ix.Accounts) >= 2 {
			out.Transfer = nativeTransfer(lamports, ix.Accounts[0].PublicKey, ix.Accounts[1].PublicKey, temp)
		}
	case 3: // createAccountWithSeed
		base, err := readPublicKey(dec)
		if err != nil {
			return nil, err
		}
		seed, err := readRustString(dec)
		if err != nil {
			return nil, err
		}
		lamports, space, owner, err := readLamportsSpaceOwner(dec)
		if err != nil {
			return nil, err
		}
		out.Args["base"], out.Args["seed"] = base.String(), seed
		out.Args["lamports"], out.Args["space"], out.Args["owner"] = lamports, space, owner.String()
		out.Accounts = nameAccounts(ix.Accounts, "from", "newAccount", "base")
	case 5: // withdrawNonceAccount
		lamports, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		out.Args["lamports"] = lamports
		out.Accounts = nameAccounts(ix.Accounts, "nonceAccount", "to")
	case 8: // allocate
		space, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		out.Args["space"] = space
		out.Accounts = nameAccounts(ix.Accounts, "account")
	case 11: // transferWithSeed
		lamports, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		seed, err := readRustString(dec)
		if err != nil {
			return nil, err
		}
		fromOwner, err := readPublicKey(dec)
		if err != nil {
			return nil, err
		}
		out.Args["lamports"], out.Args["fromSeed"], out.Args["fromOwner"] = lamports, seed, fromOwner.String()
		out.Accounts = nameAccounts(ix.Accounts, "from", "base", "to")
		if len(ix.Accounts) >= 3 {
			out.Transfer = nativeTransfer(lamports, ix.Accounts[0].PublicKey, ix.Accounts[2].PublicKey, temp)
		}
	default:
		out.Accounts = nameAccounts(ix.Accounts)
	}
	return out, nil
}

// nativeTransfer - перевод lamports учитывается как перевод wSOL. Если получатель
// временный wSOL-аккаунт, владельцем считается его владелец.
func nativeTransfer(lamports uint64, from, to solana.PublicKey, temp *TempAccounts) *TokenTransfer {
	decimals := nativeDecimals
	t := &TokenTransfer{
		Mint:             solana.SolMint,
		Amount:           new(big.Int).SetUint64(lamports),
		Decimals:         &decimals,
		Source:           from,
		Destination:      to,
		SourceOwner:      from,
		DestinationOwner: to,
	}
	if info, ok := temp.Lookup(from); ok {
		t.SourceOwner = info.Owner
	}
	if info, ok := temp.Lookup(to); ok {
		t.DestinationOwner = info.Owner
	}
	return t
}

// ---------- SPL Token / Token-2022 ----------

var tokenInstructionNames = map[uint8]string{
	0:  "initializeMint",
	1:  "initializeAccount",
	2:  "initializeMultisig",
	3:  "transfer",
	4:  "approve",
	5:  "revoke",
	6:  "setAuthority",
	7:  "mintTo",
	8:  "burn",
	9:  "closeAccount",
	10: "freezeAccount",
	11: "thawAccount",
	12: "transferChecked",
	13: "approveChecked",
	14: "mintToChecked",
	15: "burnChecked",
	16: "initializeAccount2",
	17: "syncNative",
	18: "initializeAccount3",
	19: "initializeMultisig2",
	20: "initializeMint2",
	21: "getAccountDataSize",
	22: "initializeImmutableOwner",
	23: "amountToUiAmount",
	24: "uiAmountToAmount",
}

func decodeToken(ctx context.Context, d *Decoder, ix blockchain.Instruction, temp *TempAccounts) (*DecodedInstruction, error) {
	dec := bin.NewBinDecoder(ix.Data)
	kind, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("read token discriminator: %w", err)
	}
	name, ok := tokenInstructionNames[kind]
	if !ok {
		// расширения Token-2022 без ручной раскладки
		return nil, fmt.Errorf("unsupported token instruction %d", kind)
	}

	out := &DecodedInstruction{Name: name, Args: map[string]interface{}{}}
	accounts := ix.Accounts
	switch kind {
	case 1: // initializeAccount
		out.Accounts = nameAccounts(accounts, "account", "mint", "owner", "rent")
		if len(accounts) >= 3 {
			temp.Register(accounts[0].PublicKey, TokenAccountInfo{Mint: accounts[1].PublicKey, Owner: accounts[2].PublicKey})
		}
	case 16, 18: // initializeAccount2 / initializeAccount3
		owner, err := readPublicKey(dec)
		if err != nil {
			return nil, err
		}
		out.Args["owner"] = owner.String()
		if kind == 16 {
			out.Accounts = nameAccounts(accounts, "account", "mint", "rent")
		} else {
			out.Accounts = nameAccounts(accounts, "account", "mint")
		}
		if len(accounts) >= 2 {
			temp.Register(accounts[0].PublicKey, TokenAccountInfo{Mint: accounts[1].PublicKey, Owner: owner})
		}
	case 3: // transfer
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		out.Args["amount"] = amount
		out.Accounts = nameAccounts(accounts, "source", "destination", "authority")
		if len(accounts) >= 2 {
			out.Transfer = d.tokenTransfer(ctx, amount, nil, accounts[0].PublicKey, accounts[1].PublicKey, solana.PublicKey{}, temp)
		}
	case 12: // transferChecked
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		decimals, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		out.Args["amount"], out.Args["decimals"] = amount, decimals
		out.Accounts = nameAccounts(accounts, "source", "mint", "destination", "authority")
		if len(accounts) >= 3 {
			out.Transfer = d.tokenTransfer(ctx, amount, &decimals, accounts[0].PublicKey, accounts[2].PublicKey, accounts[1].PublicKey, temp)
		}
	case 4, 7, 8: // approve / mintTo / burn
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		out.Args["amount"] = amount
		switch kind {
		case 4:
			out.Accounts = nameAccounts(accounts, "source", "delegate", "owner")
		case 7:
			out.Accounts = nameAccounts(accounts, "mint", "account", "authority")
		case 8:
			out.Accounts = nameAccounts(accounts, "account", "mint", "authority")
		}
	case 13, 14, 15: // approveChecked / mintToChecked / burnChecked
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		decimals, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		out.Args["amount"], out.Args["decimals"] = amount, decimals
		switch kind {
		case 13:
			out.Accounts = nameAccounts(accounts, "source", "mint", "delegate", "owner")
		case 14:
			out.Accounts = nameAccounts(accounts, "mint", "account", "authority")
		case 15:
			out.Accounts = nameAccounts(accounts, "account", "mint", "authority")
		}
	case 0, 20: // initializeMint / initializeMint2
		decimals, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		authority, err := readPublicKey(dec)
		if err != nil {
			return nil, err
		}
		out.Args["decimals"], out.Args["mintAuthority"] = decimals, authority.String()
		out.Accounts = nameAccounts(accounts, "mint")
	case 9: // closeAccount
		out.Accounts = nameAccounts(accounts, "account", "destination", "owner")
	case 17: // syncNative
		out.Accounts = nameAccounts(accounts, "account")
	default:
		out.Accounts = nameAccounts(accounts)
	}
	return out, nil
}

// tokenTransfer определяет минт и владельцев обеих сторон: временный реестр,
// затем чтение аккаунта из сети, иначе сам адрес аккаунта.
func (d *Decoder) tokenTransfer(ctx context.Context, amount uint64, decimals *uint8, source, destination, mint solana.PublicKey, temp *TempAccounts) *TokenTransfer {
	t := &TokenTransfer{
		Mint:             mint,
		Amount:           new(big.Int).SetUint64(amount),
		Decimals:         decimals,
		Source:           source,
		Destination:      destination,
		SourceOwner:      source,
		DestinationOwner: destination,
	}
	if info, ok := d.tokenAccount(ctx, source, temp); ok {
		t.SourceOwner = info.Owner
		if t.Mint.IsZero() {
			t.Mint = info.Mint
		}
	}
	if info, ok := d.tokenAccount(ctx, destination, temp); ok {
		t.DestinationOwner = info.Owner
		if t.Mint.IsZero() {
			t.Mint = info.Mint
		}
	}
	return t
}

// ---------- Associated Token Account ----------

func decodeAssociatedTokenAccount(_ context.Context, _ *Decoder, ix blockchain.Instruction, temp *TempAccounts) (*DecodedInstruction, error) {
	var name string
	switch {
	case len(ix.Data) == 0 || ix.Data[0] == 0:
		name = "create"
	case ix.Data[0] == 1:
		name = "createIdempotent"
	case ix.Data[0] == 2:
		name = "recoverNested"
	default:
		return nil, fmt.Errorf("unknown associated token account instruction %d", ix.Data[0])
	}

	out := &DecodedInstruction{Name: name}
	if name == "recoverNested" {
		out.Accounts = nameAccounts(ix.Accounts, "nestedAccount", "nestedMint", "destinationAccount", "ownerAccount", "ownerMint", "wallet", "tokenProgram")
		return out, nil
	}
	out.Accounts = nameAccounts(ix.Accounts, "payer", "associatedAccount", "wallet", "mint", "systemProgram", "tokenProgram")
	if len(ix.Accounts) >= 4 {
		temp.Register(ix.Accounts[1].PublicKey, TokenAccountInfo{Mint: ix.Accounts[3].PublicKey, Owner: ix.Accounts[2].PublicKey})
	}
	return out, nil
}

// ---------- Memo ----------

func decodeMemo(_ context.Context, _ *Decoder, ix blockchain.Instruction, _ *TempAccounts) (*DecodedInstruction, error) {
	return &DecodedInstruction{
		Name:     "memo",
		Args:     map[string]interface{}{"memo": string(ix.Data)},
		Accounts: nameAccounts(ix.Accounts),
	}, nil
}

// ---------- helpers ----------

func nameAccounts(metas []*solana.AccountMeta, names ...string) []idl.NamedAccount {
	out := make([]idl.NamedAccount, 0, len(metas))
	for i, meta := range metas {
		if meta == nil {
			continue
		}
		name := fmt.Sprintf("account_%d", i)
		if i < len(names) {
			name = names[i]
		}
		out = append(out, idl.NamedAccount{
			Name:       name,
			Address:    meta.PublicKey.String(),
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})
	}
	return out
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("read public key: %w", err)
	}
	return solana.PublicKeyFromBytes(b), nil
}

func readLamportsSpaceOwner(dec *bin.Decoder) (uint64, uint64, solana.PublicKey, error) {
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, 0, solana.PublicKey{}, err
	}
	space, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, 0, solana.PublicKey{}, err
	}
	owner, err := readPublicKey(dec)
	return lamports, space, owner, err
}

// readRustString читает строку bincode: длина u64, затем байты.
func readRustString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return "", err
	}
	if n > uint64(dec.Remaining()) {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	b, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
