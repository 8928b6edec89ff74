package svm

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

const (
	// MaxPermittedDataIncrease bounds how much an account can grow within a
	// single instruction.
	MaxPermittedDataIncrease = 10 * 1024

	// MaxReturnDataSize bounds the data a program can hand back to its caller.
	MaxReturnDataSize = 1024

	dataLogPrefix = "Program data: "
)

// ReturnData is the data most recently set by a program in the transaction.
type ReturnData struct {
	ProgramID ed25519.PublicKey
	Data      []byte
}

// transactionContext is the state shared by every instruction and inner
// instruction of a single transaction.
type transactionContext struct {
	ctx context.Context
	log *logrus.Entry

	programs map[string]Program
	accounts map[string]*Account

	clock    Clock
	rent     Rent
	maxDepth int

	logs       []string
	events     [][]byte
	returnData *ReturnData

	// stack holds the program ids of the active invocation frames
	stack []ed25519.PublicKey

	// aborted is the first failure of any frame. A failed inner instruction
	// cannot be recovered from by its caller.
	aborted error

	onCommit []func()
}

func newTransactionContext(ctx context.Context, log *logrus.Entry, programs map[string]Program, accounts map[string]*Account, clock Clock, rent Rent, maxDepth int) *transactionContext {
	return &transactionContext{
		ctx:      ctx,
		log:      log,
		programs: programs,
		accounts: accounts,
		clock:    clock,
		rent:     rent,
		maxDepth: maxDepth,
	}
}

func (t *transactionContext) appendLog(format string, args ...interface{}) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// execute runs a single instruction, or inner instruction when depth > 1.
func (t *transactionContext) execute(ix solana.Instruction, depth int) error {
	err := t.executeFrame(ix, depth)
	if err != nil && t.aborted == nil {
		t.aborted = err
	}
	return err
}

func (t *transactionContext) executeFrame(ix solana.Instruction, depth int) error {
	if depth > t.maxDepth {
		return ErrCallDepth
	}

	program, ok := t.programs[accountKey(ix.Program)]
	if !ok {
		return ErrUnsupportedProgramID
	}

	// Only direct self recursion is allowed
	if len(t.stack) > 0 && !bytes.Equal(t.stack[len(t.stack)-1], ix.Program) {
		for _, active := range t.stack {
			if bytes.Equal(active, ix.Program) {
				return ErrReentrancyNotAllowed
			}
		}
	}

	infos := make([]*AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		account, ok := t.accounts[accountKey(meta.PublicKey)]
		if !ok {
			return ErrMissingAccount
		}

		infos[i] = &AccountInfo{
			Account:    account,
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		}
	}

	ictx := &InvokeContext{
		tx:        t,
		programID: ix.Program,
		depth:     depth,
		accounts:  infos,
		data:      ix.Data,
	}
	ictx.snapshot()
	preLamports := ictx.lamportSum()

	programID := base58.Encode(ix.Program)
	t.appendLog("Program %s invoke [%d]", programID, depth)

	t.returnData = nil
	t.stack = append(t.stack, ix.Program)
	err := program.Process(ictx)
	t.stack = t.stack[:len(t.stack)-1]

	if t.aborted != nil {
		err = t.aborted
	}
	if err == nil {
		err = ictx.verify()
	}
	if err == nil && ictx.lamportSum() != preLamports {
		err = ErrUnbalancedInstruction
	}

	if err != nil {
		t.appendLog("Program %s failed: %s", programID, err.Error())
		return err
	}

	if t.returnData != nil && bytes.Equal(t.returnData.ProgramID, ix.Program) {
		t.appendLog("Program return: %s %s", programID, base64.StdEncoding.EncodeToString(t.returnData.Data))
	}
	t.appendLog("Program %s success", programID)
	return nil
}

// preAccount is the state of a unique instruction account as of the last
// verification point of its frame.
type preAccount struct {
	key      ed25519.PublicKey
	signer   bool
	writable bool
	state    *Account
	live     *Account
}

// InvokeContext is the view a program has of the runtime while it processes
// an instruction.
type InvokeContext struct {
	tx *transactionContext

	programID ed25519.PublicKey
	depth     int
	accounts  []*AccountInfo
	data      []byte

	pre []*preAccount
}

func (c *InvokeContext) ProgramID() ed25519.PublicKey {
	return c.programID
}

// Depth is 1 for top level instructions and grows with each inner invocation.
func (c *InvokeContext) Depth() int {
	return c.depth
}

func (c *InvokeContext) Data() []byte {
	return c.data
}

func (c *InvokeContext) Accounts() []*AccountInfo {
	return c.accounts
}

// Account returns the instruction account at index i.
func (c *InvokeContext) Account(i int) (*AccountInfo, error) {
	if i < 0 || i >= len(c.accounts) {
		return nil, ErrNotEnoughAccountKeys
	}
	return c.accounts[i], nil
}

// Context is the context of the request that submitted the transaction.
func (c *InvokeContext) Context() context.Context {
	return c.tx.ctx
}

func (c *InvokeContext) Clock() Clock {
	return c.tx.clock
}

func (c *InvokeContext) Rent() Rent {
	return c.tx.rent
}

// IsProgram reports whether key is a program registered with the runtime.
func (c *InvokeContext) IsProgram(key ed25519.PublicKey) bool {
	_, ok := c.tx.programs[accountKey(key)]
	return ok
}

// Logf appends a program log line.
func (c *InvokeContext) Logf(format string, args ...interface{}) {
	c.tx.appendLog("Program log: "+format, args...)
}

// LogData appends a base64 encoded data line, which is how programs emit
// events.
func (c *InvokeContext) LogData(data ...[]byte) {
	encoded := make([]string, len(data))
	for i, item := range data {
		encoded[i] = base64.StdEncoding.EncodeToString(item)
		c.tx.events = append(c.tx.events, append([]byte(nil), item...))
	}
	c.tx.appendLog(dataLogPrefix + strings.Join(encoded, " "))
}

// SetReturnData hands data back to the invoking program.
func (c *InvokeContext) SetReturnData(data []byte) error {
	if len(data) > MaxReturnDataSize {
		return ErrInvalidArgument
	}

	c.tx.returnData = &ReturnData{
		ProgramID: c.programID,
		Data:      append([]byte(nil), data...),
	}
	return nil
}

// ReturnData returns the data set by the most recent invocation, if any.
func (c *InvokeContext) ReturnData() (ed25519.PublicKey, []byte) {
	if c.tx.returnData == nil {
		return nil, nil
	}
	return c.tx.returnData.ProgramID, c.tx.returnData.Data
}

// OnCommit registers fn to run once the transaction is committed. It never
// runs for failed or simulated transactions.
func (c *InvokeContext) OnCommit(fn func()) {
	c.tx.onCommit = append(c.tx.onCommit, fn)
}

// Invoke executes an inner instruction with the privileges of the current
// instruction.
func (c *InvokeContext) Invoke(ix solana.Instruction) error {
	return c.InvokeSigned(ix)
}

// InvokeSigned executes an inner instruction. Each entry of signerSeeds
// derives a program address of the calling program, which is granted signer
// privileges in the inner instruction.
func (c *InvokeContext) InvokeSigned(ix solana.Instruction, signerSeeds ...[][]byte) error {
	pdaSigners := make([]ed25519.PublicKey, 0, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := solana.CreateProgramAddress(c.programID, seeds...)
		if err != nil {
			return c.abort(ErrInvalidSeeds)
		}
		pdaSigners = append(pdaSigners, pda)
	}

	if c.find(ix.Program) == nil {
		return c.abort(ErrMissingAccount)
	}

	for _, meta := range ix.Accounts {
		caller := c.find(meta.PublicKey)
		if caller == nil {
			return c.abort(ErrMissingAccount)
		}

		if meta.IsWritable && !caller.writable {
			c.tx.log.WithField("account", base58.Encode(meta.PublicKey)).Debug("writable privilege escalated")
			return c.abort(ErrPrivilegeEscalation)
		}

		if meta.IsSigner && !caller.signer && !containsKey(pdaSigners, meta.PublicKey) {
			c.tx.log.WithField("account", base58.Encode(meta.PublicKey)).Debug("signer privilege escalated")
			return c.abort(ErrPrivilegeEscalation)
		}
	}

	// Changes made so far are checked against the caller before the callee
	// observes them.
	if err := c.verify(); err != nil {
		return c.abort(err)
	}

	if err := c.tx.execute(ix, c.depth+1); err != nil {
		return err
	}

	c.snapshot()
	return nil
}

func (c *InvokeContext) abort(err error) error {
	if c.tx.aborted == nil {
		c.tx.aborted = err
	}
	return err
}

func (c *InvokeContext) find(key ed25519.PublicKey) *preAccount {
	for _, pre := range c.pre {
		if bytes.Equal(pre.key, key) {
			return pre
		}
	}
	return nil
}

// snapshot records the current state of every unique instruction account,
// merging the privileges of duplicate references.
func (c *InvokeContext) snapshot() {
	if c.pre == nil {
		for _, info := range c.accounts {
			if existing := c.find(info.Key); existing != nil {
				existing.signer = existing.signer || info.IsSigner
				existing.writable = existing.writable || info.IsWritable
				continue
			}

			c.pre = append(c.pre, &preAccount{
				key:      info.Key,
				signer:   info.IsSigner,
				writable: info.IsWritable,
				live:     info.Account,
			})
		}
	}

	for _, pre := range c.pre {
		pre.state = pre.live.Clone()
	}
}

// verify checks every change made by the program since the last snapshot
// against the account ownership rules, then takes a new snapshot.
func (c *InvokeContext) verify() error {
	for _, pre := range c.pre {
		before, after := pre.state, pre.live
		isOwner := bytes.Equal(before.Owner, c.programID)

		if before.Executable != after.Executable {
			return ErrExecutableModified
		}

		if !bytes.Equal(before.Owner, after.Owner) {
			if !pre.writable || !isOwner {
				return ErrModifiedProgramID
			}
		}

		if before.Lamports != after.Lamports {
			if !pre.writable {
				return ErrReadonlyLamportChange
			}
			if after.Lamports < before.Lamports && !isOwner {
				return ErrExternalAccountLamportSpend
			}
		}

		if !bytes.Equal(before.Data, after.Data) {
			if !pre.writable {
				return ErrReadonlyDataModified
			}
			if !isOwner {
				return ErrExternalAccountDataModified
			}
			if len(after.Data) > len(before.Data)+MaxPermittedDataIncrease {
				return ErrInvalidRealloc
			}
		}
	}

	c.snapshot()
	return nil
}

func (c *InvokeContext) lamportSum() uint64 {
	var sum uint64
	for _, pre := range c.pre {
		sum += pre.live.Lamports
	}
	return sum
}

func containsKey(keys []ed25519.PublicKey, key ed25519.PublicKey) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}
