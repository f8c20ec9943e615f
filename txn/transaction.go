package txn

import (
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/google/uuid"
)

// state is a transaction's lifecycle stage.
type state int

const (
	stateActive state = iota
	stateCommitted
	stateAborted
)

// Flags controls transaction behavior at begin time (spec.md §6).
type Flags struct {
	ReadOnly bool
}

// Transaction is one logical unit of isolation over a database. Ops
// logged against it chain in commit order (oldestOp..newestOp); the
// environment-wide list of transactions (older/newer) is what
// Manager.flushCommitted walks oldest-first (spec.md §4.6, §5).
type Transaction struct {
	id    uint64
	env   *Manager
	name  string
	flags Flags
	st    state

	cursorRefcount int

	// remoteHandle is the field spec.md §3 reserves for the out-of-scope
	// network/remote-server layer. Nothing in this module assigns it, so
	// RemoteHandle always reports the zero UUID.
	remoteHandle uuid.UUID

	oldestOp, newestOp *Operation
	older, newer       *Transaction
}

func (t *Transaction) ID() uint64             { return t.id }
func (t *Transaction) Name() string           { return t.name }
func (t *Transaction) RemoteHandle() uuid.UUID { return t.remoteHandle }
func (t *Transaction) IsReadOnly() bool       { return t.flags.ReadOnly }

func (t *Transaction) active() bool    { return t.st == stateActive }
func (t *Transaction) committed() bool { return t.st == stateCommitted }
func (t *Transaction) aborted() bool   { return t.st == stateAborted }

// IsCommitted and IsAborted expose lifecycle state to other packages
// (cursor's duplicate-cache construction).
func (t *Transaction) IsCommitted() bool { return t.committed() }
func (t *Transaction) IsAborted() bool   { return t.aborted() }

// CursorRefcount reports how many cursors are currently bound to t.
func (t *Transaction) CursorRefcount() int { return t.cursorRefcount }

func (t *Transaction) incRef() { t.cursorRefcount++ }
func (t *Transaction) decRef() {
	if t.cursorRefcount > 0 {
		t.cursorRefcount--
	}
}

// IncCursorRefcount and DecCursorRefcount are the cursor package's
// hooks for binding/releasing a cursor against this transaction
// (spec.md §4.6 Cursor refcount).
func (t *Transaction) IncCursorRefcount() { t.incRef() }
func (t *Transaction) DecCursorRefcount() { t.decRef() }

// Commit marks t committed and triggers the environment's
// flush-committed-transactions pass (spec.md §4.6 Commit & flush).
// A transaction with an attached cursor cannot commit.
func (t *Transaction) Commit() error {
	if t.cursorRefcount > 0 {
		return fmt.Errorf("%w: transaction %d", common.ErrCursorStillOpen, t.id)
	}
	t.st = stateCommitted
	return t.env.flushCommitted()
}

// Abort marks t aborted and frees its logged operations immediately
// (spec.md §4.6 Abort); those operations never reached the B+tree, so
// nothing else is undone. A transaction with an attached cursor cannot
// abort.
func (t *Transaction) Abort() error {
	if t.cursorRefcount > 0 {
		return fmt.Errorf("%w: transaction %d", common.ErrCursorStillOpen, t.id)
	}
	t.st = stateAborted
	t.freeOperations()
	t.env.unlinkTxn(t)
	if t.env.metrics != nil {
		t.env.metrics.TxnAborts++
	}
	return nil
}

// freeOperations releases every op this transaction still owns,
// removing each from its key node (and the node itself, once empty).
func (t *Transaction) freeOperations() {
	op := t.oldestOp
	for op != nil {
		next := op.txnNext
		t.env.index.removeOperation(op)
		op = next
	}
	t.oldestOp = nil
	t.newestOp = nil
}
