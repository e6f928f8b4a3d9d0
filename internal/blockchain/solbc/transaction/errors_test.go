package transaction

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
)

func TestClassifySendError(t *testing.T) {
	schema, err := idl.Parse([]byte(`{
		"name": "lb_clmm",
		"instructions": [{"name": "swap", "accounts": [], "args": []}],
		"errors": [{"code": 6004, "name": "ExceededSlippage", "msg": "Exceeded slippage tolerance"}]
	}`))
	require.NoError(t, err)
	registry := idl.NewRegistry(nil, zaptest.NewLogger(t))
	registry.Put(lpProgram, schema)
	c := NewErrorClassifier(registry)
	programs := []solana.PublicKey{solana.ComputeBudget, solana.TokenProgramID, lpProgram}

	t.Run("structured blockhash not found", func(t *testing.T) {
		err := c.ClassifySendError(&jsonrpc.RPCError{Code: -32002, Message: "simulation failed", Data: map[string]interface{}{"err": "BlockhashNotFound"}}, programs)
		assert.ErrorIs(t, err, ErrBlockhashNotFound)
		assert.True(t, IsTransient(err))
	})

	t.Run("message fallback for expired blockhash", func(t *testing.T) {
		err := c.ClassifySendError(errors.New("transaction failed: block height exceeded"), programs)
		assert.ErrorIs(t, err, ErrBlockhashExpired)
	})

	t.Run("program text mentioning expiry is not transient", func(t *testing.T) {
		err := c.ClassifySendError(errors.New("Error processing Instruction 2: custom program error: 0x1774. Oracle price has expired"), programs)
		var pe *ProgramError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, uint32(6004), pe.Code)
		assert.False(t, IsTransient(err))

		err = c.ClassifySendError(errors.New("Transaction signature verification failure: Blockhash has expired"), programs)
		assert.ErrorIs(t, err, ErrBlockhashExpired)
	})

	t.Run("structured custom code with json numbers", func(t *testing.T) {
		err := c.ClassifySendError(&jsonrpc.RPCError{
			Message: "Transaction simulation failed: Error processing Instruction 2: custom program error: 0x1774",
			Data: map[string]interface{}{
				"err": map[string]interface{}{
					"InstructionError": []interface{}{json.Number("2"), map[string]interface{}{"Custom": json.Number("6004")}},
				},
			},
		}, programs)
		var pe *ProgramError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, uint32(6004), pe.Code)
		assert.Equal(t, "ExceededSlippage", pe.Name)
		assert.Equal(t, 2, pe.InstructionIndex)
		assert.False(t, IsTransient(err))
	})

	t.Run("message fallback with hex code", func(t *testing.T) {
		err := c.ClassifySendError(errors.New("Error processing Instruction 2: custom program error: 0x1774"), programs)
		var pe *ProgramError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, uint32(6004), pe.Code)
		assert.Equal(t, lpProgram, pe.ProgramID)
		assert.Equal(t, "ExceededSlippage", pe.Name)
	})

	t.Run("token program code from fixed table", func(t *testing.T) {
		err := c.ClassifySendError(errors.New("Error processing Instruction 1: custom program error: 0x1"), programs)
		var pe *ProgramError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "InsufficientFunds", pe.Name)
	})

	t.Run("anchor framework code from logs", func(t *testing.T) {
		err := c.ClassifySendError(&jsonrpc.RPCError{
			Message: "Transaction simulation failed",
			Data: map[string]interface{}{
				"err": map[string]interface{}{
					"InstructionError": []interface{}{float64(2), map[string]interface{}{"Custom": float64(2006)}},
				},
				"logs": []interface{}{
					"Program log: AnchorError caused by account: position. Error Code: ConstraintSeeds. Error Number: 2006. Error Message: A seeds constraint was violated.",
				},
			},
		}, programs)
		var pe *ProgramError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "ConstraintSeeds", pe.Name)
		assert.Equal(t, "A seeds constraint was violated", pe.Message)
	})

	t.Run("unknown code gets a generic name", func(t *testing.T) {
		err := c.ClassifySendError(errors.New("custom program error: 0x2710"), nil)
		var pe *ProgramError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "Custom(10000)", pe.Name)
	})

	t.Run("unrelated error is returned unchanged", func(t *testing.T) {
		orig := errors.New("connection reset by peer")
		assert.Equal(t, orig, c.ClassifySendError(orig, programs))
	})
}

func TestClassifyStatusError(t *testing.T) {
	c := NewErrorClassifier(nil)
	err := c.ClassifyStatusError(map[string]interface{}{
		"InstructionError": []interface{}{float64(0), "InvalidAccountData"},
	}, []solana.PublicKey{solana.SystemProgramID})
	var pe *ProgramError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "InvalidAccountData", pe.Name)
	assert.Equal(t, solana.SystemProgramID, pe.ProgramID)

	err = c.ClassifyStatusError("AccountInUse", nil)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Nil(t, c.ClassifyStatusError(nil, nil))
}

func TestAnchorErrorFromLogs(t *testing.T) {
	pe, ok := anchorErrorFromLogs([]string{
		"Program log: Instruction: Swap",
		"Program log: AnchorError occurred. Error Code: InstructionFallbackNotFound. Error Number: 101. Error Message: Fallback functions are not supported.",
	})
	require.True(t, ok)
	assert.Equal(t, uint32(101), pe.Code)
	assert.Equal(t, "InstructionFallbackNotFound", pe.Name)
	assert.Equal(t, "Fallback functions are not supported", pe.Message)

	_, ok = anchorErrorFromLogs([]string{"Program log: ok"})
	assert.False(t, ok)
}
