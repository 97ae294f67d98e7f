package dispatcher

import (
	"sort"

	"github.com/oxidb/oxidb/pkg/collection"
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// op is one buffered write inside an open transaction.
type op struct {
	collection string
	kind       string // "insert", "update", "delete"
	document   document.Value
	filter     document.Value
	update     document.Value
}

// Transaction buffers writes issued between begin_tx and commit_tx/
// rollback_tx. Nothing is applied to storage until commit, at which
// point every participant collection's write lock is acquired in
// lexicographic order of collection name (per the shared-resource
// policy) and the buffered ops replay in submission order.
type Transaction struct {
	ops []op
}

// BufferInsert records a pending insert and returns an empty id: the
// document is assigned its id only once commit actually runs the insert;
// callers needing the real id must inspect the commit reply.
func (t *Transaction) BufferInsert(coll string, doc document.Value) string {
	t.ops = append(t.ops, op{collection: coll, kind: "insert", document: doc})
	return ""
}

func (t *Transaction) BufferUpdate(coll string, filter, update document.Value) {
	t.ops = append(t.ops, op{collection: coll, kind: "update", filter: filter, update: update})
}

func (t *Transaction) BufferDelete(coll string, filter document.Value) {
	t.ops = append(t.ops, op{collection: coll, kind: "delete", filter: filter})
}

func (d *Dispatcher) handleBeginTx(sess *Session) Reply {
	if sess.tx != nil {
		return errReply(oxierr.New(oxierr.BadRequest, "a transaction is already open on this connection"))
	}
	sess.tx = &Transaction{}
	return Reply{OK: true}
}

func (d *Dispatcher) handleRollbackTx(sess *Session) Reply {
	sess.tx = nil
	return Reply{OK: true}
}

func (d *Dispatcher) handleCommitTx(sess *Session) Reply {
	tx := sess.tx
	sess.tx = nil
	if tx == nil {
		return errReply(oxierr.New(oxierr.BadRequest, "no open transaction on this connection"))
	}

	names := make(map[string]struct{}, len(tx.ops))
	for _, o := range tx.ops {
		names[o.collection] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	collections := make(map[string]*collection.Collection, len(sorted))
	for _, name := range sorted {
		c, err := d.openCollection(name)
		if err != nil {
			return errReply(err)
		}
		collections[name] = c
		c.Lock()
	}
	defer func() {
		for _, name := range sorted {
			collections[name].Unlock()
		}
	}()

	ids := make([]string, 0, len(tx.ops))
	for _, o := range tx.ops {
		c := collections[o.collection]
		switch o.kind {
		case "insert":
			id, err := c.InsertLocked(o.document)
			if err != nil {
				return errReply(err)
			}
			ids = append(ids, id)
		case "update":
			if _, err := c.UpdateLocked(o.filter, o.update); err != nil {
				return errReply(err)
			}
		case "delete":
			if _, err := c.DeleteLocked(o.filter); err != nil {
				return errReply(err)
			}
		}
	}
	return Reply{OK: true, IDs: ids}
}
