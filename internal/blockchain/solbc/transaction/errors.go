// internal/blockchain/solbc/transaction/errors.go
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
)

var (
	// ErrBlockhashExpired - высота блока прошла LastValidBlockHeight якоря (TimestampExpired).
	ErrBlockhashExpired = errors.New("blockhash expired")
	// ErrBlockhashNotFound - узел не знает blockhash транзакции.
	ErrBlockhashNotFound = errors.New("blockhash not found")

	ErrMissingFeePayer    = errors.New("fee payer is not among the signers")
	ErrNoInstructions     = errors.New("no instructions to send")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrInvalidSignature   = errors.New("invalid transaction signature")
	ErrInvalidBlockhash   = errors.New("invalid blockhash")
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// TransientError - состояние сети, после которого операцию можно пересобрать и повторить.
type TransientError struct {
	Reason error // ErrBlockhashExpired или ErrBlockhashNotFound
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%v: %v", e.Reason, e.Err)
}

func (e *TransientError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// IsTransient сообщает, повторяет ли движок такую ошибку сам.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ProgramError - программа отвергла транзакцию. Движок такие ошибки не повторяет.
type ProgramError struct {
	Code             uint32
	Name             string
	Message          string
	ProgramID        solana.PublicKey
	InstructionIndex int
	Err              error
}

func (e *ProgramError) Error() string {
	msg := fmt.Sprintf("program error %d", e.Code)
	if e.Name != "" {
		msg += " (" + e.Name + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if !e.ProgramID.IsZero() {
		msg += fmt.Sprintf(" [program %s, instruction %d]", e.ProgramID, e.InstructionIndex)
	}
	return msg
}

func (e *ProgramError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransactionFailed}
	}
	return []error{ErrTransactionFailed, e.Err}
}

var (
	programErrorPattern  = regexp.MustCompile(`(?i)(?:program|anchor|idl) error:? (0x[0-9a-f]+|[0-9]+)`)
	instructionPattern   = regexp.MustCompile(`(?i)instruction (\d+)`)
	anchorLogPattern     = regexp.MustCompile(`Error Code: (\w+)\. Error Number: (\d+)\. Error Message: (.*?)\.?$`)
	blockhashNotFoundMsg = []string{"blockhash not found", "blockhashnotfound"}
)

// ErrorClassifier раскладывает ошибки отправки и статуса по таксономии движка.
type ErrorClassifier struct {
	registry *idl.Registry
}

// NewErrorClassifier создает классификатор. registry может быть nil.
func NewErrorClassifier(registry *idl.Registry) *ErrorClassifier {
	return &ErrorClassifier{registry: registry}
}

// ClassifySendError разбирает ошибку SendTransaction. programs - program id
// инструкций верхнего уровня в порядке транзакции.
// Сначала структурированные данные RPC-ошибки, затем текст сообщения.
func (c *ErrorClassifier) ClassifySendError(err error, programs []solana.PublicKey) error {
	if err == nil {
		return nil
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if data, ok := rpcErr.Data.(map[string]interface{}); ok {
			logs := stringSlice(data["logs"])
			if classified := c.fromErrValue(data["err"], logs, programs, err); classified != nil {
				return classified
			}
		}
	}

	return c.fromMessage(err, programs)
}

// ClassifyStatusError разбирает поле err статуса подписи.
func (c *ErrorClassifier) ClassifyStatusError(statusErr interface{}, programs []solana.PublicKey) error {
	if statusErr == nil {
		return nil
	}
	cause := fmt.Errorf("%w: %v", ErrTransactionFailed, statusErr)
	if classified := c.fromErrValue(statusErr, nil, programs, cause); classified != nil {
		return classified
	}
	return cause
}

func (c *ErrorClassifier) fromErrValue(v interface{}, logs []string, programs []solana.PublicKey, cause error) error {
	switch val := v.(type) {
	case string:
		switch val {
		case "BlockhashNotFound":
			return &TransientError{Reason: ErrBlockhashNotFound, Err: cause}
		case "BlockhashExpired":
			return &TransientError{Reason: ErrBlockhashExpired, Err: cause}
		}
	case map[string]interface{}:
		raw, ok := val["InstructionError"].([]interface{})
		if !ok || len(raw) != 2 {
			return nil
		}
		idx, ok := toUint64(raw[0])
		if !ok {
			return nil
		}
		pe := &ProgramError{InstructionIndex: int(idx), Err: cause}
		if int(idx) < len(programs) {
			pe.ProgramID = programs[idx]
		}
		switch detail := raw[1].(type) {
		case map[string]interface{}:
			code, ok := toUint64(detail["Custom"])
			if !ok {
				pe.Name = firstKey(detail)
				return pe
			}
			pe.Code = uint32(code)
			c.describe(pe)
		case string:
			pe.Name = detail
		}
		c.applyAnchorLogs(pe, logs)
		return pe
	}
	return nil
}

// blockhashExpiredMessage узнаёт истёкший blockhash по тексту узла. Слово
// "expired" без "blockhash" бывает и в ошибках программ.
func blockhashExpiredMessage(msg string) bool {
	if strings.Contains(msg, "block height exceeded") {
		return true
	}
	return strings.Contains(msg, "blockhash") && strings.Contains(msg, "expired")
}

// fromMessage - запасной разбор по тексту ошибки.
func (c *ErrorClassifier) fromMessage(err error, programs []solana.PublicKey) error {
	msg := strings.ToLower(err.Error())
	for _, s := range blockhashNotFoundMsg {
		if strings.Contains(msg, s) {
			return &TransientError{Reason: ErrBlockhashNotFound, Err: err}
		}
	}
	if blockhashExpiredMessage(msg) {
		return &TransientError{Reason: ErrBlockhashExpired, Err: err}
	}

	m := programErrorPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	code, perr := parseCode(m[1])
	if perr != nil {
		return err
	}
	pe := &ProgramError{Code: code, InstructionIndex: -1, Err: err}
	if im := instructionPattern.FindStringSubmatch(err.Error()); im != nil {
		if idx, aerr := strconv.Atoi(im[1]); aerr == nil {
			pe.InstructionIndex = idx
			if idx < len(programs) {
				pe.ProgramID = programs[idx]
			}
		}
	}
	c.describe(pe)
	return pe
}

// describe заполняет имя и сообщение по коду ошибки.
func (c *ErrorClassifier) describe(pe *ProgramError) {
	if pe.Code >= 6000 {
		if c.registry == nil {
			pe.Name = customName(pe.Code)
			return
		}
		if def, ok := c.registry.LookupError(pe.ProgramID, pe.Code); ok {
			pe.Name, pe.Message = def.Name, def.Msg
			return
		}
		if pe.ProgramID.IsZero() {
			if def, program, ok := c.registry.FindError(pe.Code); ok {
				pe.Name, pe.Message, pe.ProgramID = def.Name, def.Msg, program
				return
			}
		}
		pe.Name = customName(pe.Code)
		return
	}

	if def, ok := lookupFixedCode(pe.ProgramID, pe.Code); ok {
		pe.Name, pe.Message = def.Name, def.Msg
		return
	}
	pe.Name = customName(pe.Code)
}

// applyAnchorLogs берёт имя и сообщение из "AnchorError occurred", если код совпал
// или не был известен.
func (c *ErrorClassifier) applyAnchorLogs(pe *ProgramError, logs []string) {
	for _, line := range logs {
		if !strings.Contains(line, "AnchorError") {
			continue
		}
		m := anchorLogPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		code, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		if pe.Code != 0 && uint32(code) != pe.Code {
			continue
		}
		pe.Code = uint32(code)
		pe.Name = m[1]
		pe.Message = strings.TrimSpace(m[3])
		return
	}
}

// anchorErrorFromLogs ищет первую ошибку Anchor в логах программы.
func anchorErrorFromLogs(logs []string) (*ProgramError, bool) {
	pe := &ProgramError{InstructionIndex: -1}
	(&ErrorClassifier{}).applyAnchorLogs(pe, logs)
	if pe.Name == "" {
		return nil, false
	}
	return pe, true
}

func customName(code uint32) string {
	return fmt.Sprintf("Custom(%d)", code)
}

func parseCode(s string) (uint32, error) {
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	return uint32(v), err
}

func toUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	}
	return 0, false
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstKey(m map[string]interface{}) string {
	for k := range m {
		return k
	}
	return ""
}

func isProgramError(err error) bool {
	var pe *ProgramError
	return errors.As(err, &pe)
}

// isFatal - ошибки, которые не повторяются даже по RetryFilter.
func isFatal(err error) bool {
	return errors.Is(err, ErrMissingFeePayer) ||
		errors.Is(err, ErrNoInstructions) ||
		errors.Is(err, ErrInvalidSignature)
}
