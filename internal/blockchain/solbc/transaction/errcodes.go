// internal/blockchain/solbc/transaction/errcodes.go
package transaction

import (
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
)

// Ошибки SPL Token (spl-token/program/src/error.rs).
var tokenErrors = map[uint32]idl.ErrorDef{
	0:  {Name: "NotRentExempt", Msg: "Lamport balance below rent-exempt threshold"},
	1:  {Name: "InsufficientFunds", Msg: "Insufficient funds"},
	2:  {Name: "InvalidMint", Msg: "Invalid Mint"},
	3:  {Name: "MintMismatch", Msg: "Account not associated with this Mint"},
	4:  {Name: "OwnerMismatch", Msg: "Owner does not match"},
	5:  {Name: "FixedSupply", Msg: "Fixed supply"},
	6:  {Name: "AlreadyInUse", Msg: "Already in use"},
	7:  {Name: "InvalidNumberOfProvidedSigners", Msg: "Invalid number of provided signers"},
	8:  {Name: "InvalidNumberOfRequiredSigners", Msg: "Invalid number of required signers"},
	9:  {Name: "UninitializedState", Msg: "State is uninitialized"},
	10: {Name: "NativeNotSupported", Msg: "Instruction does not support native tokens"},
	11: {Name: "NonNativeHasBalance", Msg: "Non-native account can only be closed if its balance is zero"},
	12: {Name: "InvalidInstruction", Msg: "Invalid instruction"},
	13: {Name: "InvalidState", Msg: "State is invalid for requested operation"},
	14: {Name: "Overflow", Msg: "Operation overflowed"},
	15: {Name: "AuthorityTypeNotSupported", Msg: "Account does not support specified authority type"},
	16: {Name: "MintCannotFreeze", Msg: "This token mint cannot freeze accounts"},
	17: {Name: "AccountFrozen", Msg: "Account is frozen"},
	18: {Name: "MintDecimalsMismatch", Msg: "The provided decimals value different from the Mint decimals"},
	19: {Name: "NonNativeNotSupported", Msg: "Instruction does not support non-native tokens"},
}

// Ошибки фреймворка Anchor (коды 100..5999).
var anchorErrors = map[uint32]idl.ErrorDef{
	100:  {Name: "InstructionMissing", Msg: "8 byte instruction identifier not provided"},
	101:  {Name: "InstructionFallbackNotFound", Msg: "Fallback functions are not supported"},
	102:  {Name: "InstructionDidNotDeserialize", Msg: "The program could not deserialize the given instruction"},
	103:  {Name: "InstructionDidNotSerialize", Msg: "The program could not serialize the given instruction"},
	1000: {Name: "IdlInstructionStub", Msg: "The program was compiled without idl instructions"},
	1001: {Name: "IdlInstructionInvalidProgram", Msg: "Invalid program given to the IDL instruction"},
	2000: {Name: "ConstraintMut", Msg: "A mut constraint was violated"},
	2001: {Name: "ConstraintHasOne", Msg: "A has one constraint was violated"},
	2002: {Name: "ConstraintSigner", Msg: "A signer constraint was violated"},
	2003: {Name: "ConstraintRaw", Msg: "A raw constraint was violated"},
	2004: {Name: "ConstraintOwner", Msg: "An owner constraint was violated"},
	2005: {Name: "ConstraintRentExempt", Msg: "A rent exemption constraint was violated"},
	2006: {Name: "ConstraintSeeds", Msg: "A seeds constraint was violated"},
	2007: {Name: "ConstraintExecutable", Msg: "An executable constraint was violated"},
	2009: {Name: "ConstraintAssociated", Msg: "An associated constraint was violated"},
	2011: {Name: "ConstraintClose", Msg: "A close constraint was violated"},
	2012: {Name: "ConstraintAddress", Msg: "An address constraint was violated"},
	2014: {Name: "ConstraintTokenMint", Msg: "A token mint constraint was violated"},
	2015: {Name: "ConstraintTokenOwner", Msg: "A token owner constraint was violated"},
	2019: {Name: "ConstraintSpace", Msg: "A space constraint was violated"},
	2020: {Name: "ConstraintAccountIsNone", Msg: "A required account for the constraint is None"},
	2500: {Name: "RequireViolated", Msg: "A require expression was violated"},
	2501: {Name: "RequireEqViolated", Msg: "A require_eq expression was violated"},
	2502: {Name: "RequireKeysEqViolated", Msg: "A require_keys_eq expression was violated"},
	2503: {Name: "RequireNeqViolated", Msg: "A require_neq expression was violated"},
	2504: {Name: "RequireKeysNeqViolated", Msg: "A require_keys_neq expression was violated"},
	2505: {Name: "RequireGtViolated", Msg: "A require_gt expression was violated"},
	2506: {Name: "RequireGteViolated", Msg: "A require_gte expression was violated"},
	3000: {Name: "AccountDiscriminatorAlreadySet", Msg: "The account discriminator was already set on this account"},
	3001: {Name: "AccountDiscriminatorNotFound", Msg: "No 8 byte discriminator was found on the account"},
	3002: {Name: "AccountDiscriminatorMismatch", Msg: "8 byte discriminator did not match what was expected"},
	3003: {Name: "AccountDidNotDeserialize", Msg: "Failed to deserialize the account"},
	3004: {Name: "AccountDidNotSerialize", Msg: "Failed to serialize the account"},
	3005: {Name: "AccountNotEnoughKeys", Msg: "Not enough account keys given to the instruction"},
	3006: {Name: "AccountNotMutable", Msg: "The given account is not mutable"},
	3007: {Name: "AccountOwnedByWrongProgram", Msg: "The given account is owned by a different program than expected"},
	3008: {Name: "InvalidProgramId", Msg: "Program ID was not as expected"},
	3009: {Name: "InvalidProgramExecutable", Msg: "Program account is not executable"},
	3010: {Name: "AccountNotSigner", Msg: "The given account did not sign"},
	3011: {Name: "AccountNotSystemOwned", Msg: "The given account is not owned by the system program"},
	3012: {Name: "AccountNotInitialized", Msg: "The program expected this account to be already initialized"},
	3013: {Name: "AccountNotProgramData", Msg: "The given account is not a program data account"},
	3014: {Name: "AccountNotAssociatedTokenAccount", Msg: "The given account is not the associated token account"},
	3015: {Name: "AccountSysvarMismatch", Msg: "The given public key does not match the required sysvar"},
	3016: {Name: "AccountReallocExceedsLimit", Msg: "The account reallocation exceeds the MAX_PERMITTED_DATA_INCREASE limit"},
	3017: {Name: "AccountDuplicateReallocs", Msg: "The account was duplicated for more than one reallocation"},
	4100: {Name: "DeclaredProgramIdMismatch", Msg: "The declared program id does not match the actual program id"},
	5000: {Name: "Deprecated", Msg: "The API being used is deprecated and should no longer be used"},
}

// lookupFixedCode ищет коды < 6000: SPL Token для токен-программ, иначе фреймворк Anchor.
func lookupFixedCode(programID solana.PublicKey, code uint32) (idl.ErrorDef, bool) {
	if programID.Equals(solana.TokenProgramID) || programID.Equals(solana.Token2022ProgramID) {
		def, ok := tokenErrors[code]
		def.Code = code
		return def, ok
	}
	def, ok := anchorErrors[code]
	def.Code = code
	return def, ok
}
