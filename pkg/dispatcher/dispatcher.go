package dispatcher

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/oxidb/oxidb/pkg/aggregate"
	"github.com/oxidb/oxidb/pkg/auth"
	"github.com/oxidb/oxidb/pkg/blob"
	"github.com/oxidb/oxidb/pkg/collection"
	"github.com/oxidb/oxidb/pkg/consensus"
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/index"
	"github.com/oxidb/oxidb/pkg/oxierr"
	"github.com/oxidb/oxidb/pkg/query"
	"github.com/oxidb/oxidb/pkg/sqlsubset"
)

// applyTimeout bounds how long a replicated write waits for Raft commit.
const applyTimeout = 5 * time.Second

// Dispatcher holds the engine's entry points: the collection manager,
// the blob store, the user credential store, and (when clustered) the
// consensus node every mutating command must route through.
type Dispatcher struct {
	manager *collection.Manager
	blobs   *blob.Store
	users   *auth.Store
	node    *consensus.Node
}

// New builds a Dispatcher. node is nil for a standalone (non-clustered)
// engine.
func New(manager *collection.Manager, blobs *blob.Store, users *auth.Store, node *consensus.Node) *Dispatcher {
	return &Dispatcher{manager: manager, blobs: blobs, users: users, node: node}
}

// Session is the per-connection state the dispatcher threads through
// repeated Dispatch calls: SCRAM/auth progress plus any open transaction.
type Session struct {
	auth *auth.Session
	tx   *Transaction
}

// NewSession starts a fresh, unauthenticated session.
func (d *Dispatcher) NewSession() *Session {
	return &Session{auth: auth.NewSession(d.users)}
}

// Dispatch routes one decoded request through the session/authorization
// gate and into the engine, returning the reply to frame back to the
// client. Dispatch never panics on a malformed request; every failure
// mode is surfaced as Reply{OK: false, Error: ...}.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, req Request) Reply {
	if req.Cmd != "auth_start" && req.Cmd != "auth_continue" {
		sess.auth.Reset()
	}
	if req.Cmd == "" {
		return errReply(oxierr.New(oxierr.BadRequest, "missing cmd"))
	}
	if err := sess.auth.Authorize(req.Cmd); err != nil {
		return errReply(err)
	}

	switch req.Cmd {
	case "ping":
		return Reply{OK: true}

	case "auth_start":
		return d.handleAuthStart(sess, req)
	case "auth_continue":
		return d.handleAuthContinue(sess, req)

	case "insert":
		return d.handleInsert(sess, req)
	case "insert_many":
		return d.handleInsertMany(sess, req)
	case "find":
		return d.handleFind(req)
	case "find_one":
		return d.handleFindOne(req)
	case "count":
		return d.handleCount(req)
	case "update":
		return d.handleUpdate(sess, req)
	case "delete":
		return d.handleDelete(sess, req)

	case "create_collection":
		return d.handleCreateCollection(sess, req)
	case "drop_collection":
		return d.handleDropCollection(sess, req)
	case "list_collections":
		return d.handleListCollections()
	case "compact":
		return d.handleCompact(sess, req)

	case "create_index":
		return d.handleCreateIndex(sess, req, index.KindSingle, false)
	case "create_unique_index":
		return d.handleCreateIndex(sess, req, index.KindSingle, true)
	case "create_composite_index":
		return d.handleCreateIndex(sess, req, index.KindComposite, req.Unique)
	case "create_text_index":
		return d.handleCreateIndex(sess, req, index.KindText, false)
	case "drop_index":
		return d.handleDropIndex(sess, req)
	case "list_indexes":
		return d.handleListIndexes(req)

	case "aggregate":
		return d.handleAggregate(req)

	case "begin_tx":
		return d.handleBeginTx(sess)
	case "commit_tx":
		return d.handleCommitTx(sess)
	case "rollback_tx":
		return d.handleRollbackTx(sess)

	case "create_bucket":
		return d.handleCreateBucket(sess, req)
	case "delete_bucket":
		return d.handleDeleteBucket(sess, req)
	case "list_buckets":
		return d.handleListBuckets()
	case "put_object":
		return d.handlePutObject(sess, req)
	case "get_object":
		return d.handleGetObject(req)
	case "head_object":
		return d.handleHeadObject(req)
	case "delete_object":
		return d.handleDeleteObject(sess, req)
	case "list_objects":
		return d.handleListObjects(req)

	case "sql":
		return d.handleSQL(req)

	default:
		return errReply(oxierr.New(oxierr.BadRequest, "unknown command %q", req.Cmd))
	}
}

// Disconnect rolls back any open transaction, matching the cancellation
// policy: open transactions are rolled back on disconnect.
func (d *Dispatcher) Disconnect(sess *Session) {
	sess.tx = nil
}

func (d *Dispatcher) handleAuthStart(sess *Session, req Request) Reply {
	salt, iterations, nonce, err := sess.auth.AuthStart(req.User, req.ClientFirst)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Salt: salt, Iterations: iterations, Nonce: nonce}
}

func (d *Dispatcher) handleAuthContinue(sess *Session, req Request) Reply {
	sig, err := sess.auth.AuthContinue(req.ClientFinal, req.ClientProof)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, ServerSignature: sig, Role: string(sess.auth.Role())}
}

func (d *Dispatcher) openCollection(name string) (*collection.Collection, error) {
	return d.manager.Open(name)
}

func (d *Dispatcher) handleInsert(sess *Session, req Request) Reply {
	if sess.tx != nil {
		id := sess.tx.BufferInsert(req.Collection, req.Document)
		return Reply{OK: true, ID: id}
	}
	if d.node != nil {
		result, err := d.node.Apply(consensus.OpInsert, insertCmdPayload{Collection: req.Collection, Document: req.Document}, applyTimeout)
		if err != nil {
			return errReply(err)
		}
		id, _ := result.(string)
		return Reply{OK: true, ID: id}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	id, err := c.Insert(req.Document)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, ID: id}
}

func (d *Dispatcher) handleInsertMany(sess *Session, req Request) Reply {
	if d.node != nil {
		result, err := d.node.Apply(consensus.OpInsertMany, insertManyCmdPayload{Collection: req.Collection, Documents: req.Documents}, applyTimeout)
		if err != nil {
			return errReply(err)
		}
		ids, _ := result.([]string)
		return Reply{OK: true, IDs: ids}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	ids := make([]string, 0, len(req.Documents))
	for _, doc := range req.Documents {
		id, err := c.Insert(doc)
		if err != nil {
			return errReply(err)
		}
		ids = append(ids, id)
	}
	return Reply{OK: true, IDs: ids}
}

func (d *Dispatcher) handleFind(req Request) Reply {
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	docs, err := c.Find(req.Filter, req.Limit, req.Skip)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Documents: docs}
}

func (d *Dispatcher) handleFindOne(req Request) Reply {
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	doc, found, err := c.FindOne(req.Filter)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Found: found, Document: doc}
}

func (d *Dispatcher) handleCount(req Request) Reply {
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	n, err := c.Count(req.Filter)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Count: n}
}

func (d *Dispatcher) handleUpdate(sess *Session, req Request) Reply {
	if sess.tx != nil {
		sess.tx.BufferUpdate(req.Collection, req.Filter, req.Update)
		return Reply{OK: true}
	}
	if d.node != nil {
		result, err := d.node.Apply(consensus.OpUpdate, filterUpdateCmdPayload{Collection: req.Collection, Filter: req.Filter, Update: req.Update}, applyTimeout)
		if err != nil {
			return errReply(err)
		}
		n, _ := result.(int)
		return Reply{OK: true, Count: n}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	n, err := c.Update(req.Filter, req.Update)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Count: n}
}

func (d *Dispatcher) handleDelete(sess *Session, req Request) Reply {
	if sess.tx != nil {
		sess.tx.BufferDelete(req.Collection, req.Filter)
		return Reply{OK: true}
	}
	if d.node != nil {
		result, err := d.node.Apply(consensus.OpDelete, filterUpdateCmdPayload{Collection: req.Collection, Filter: req.Filter}, applyTimeout)
		if err != nil {
			return errReply(err)
		}
		n, _ := result.(int)
		return Reply{OK: true, Count: n}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	n, err := c.Delete(req.Filter)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Count: n}
}

func (d *Dispatcher) handleCreateCollection(sess *Session, req Request) Reply {
	if err := collection.ValidateName(req.Collection, true); err != nil {
		return errReply(err)
	}
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpCreateCollection, collectionCmdPayload{Collection: req.Collection}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	if _, err := d.openCollection(req.Collection); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleDropCollection(sess *Session, req Request) Reply {
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpDropCollection, collectionCmdPayload{Collection: req.Collection}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	if err := d.manager.Drop(req.Collection); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleListCollections() Reply {
	names, err := d.manager.List()
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Collections: names}
}

func (d *Dispatcher) handleCompact(sess *Session, req Request) Reply {
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpCompact, collectionCmdPayload{Collection: req.Collection}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	if err := c.Compact(); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleCreateIndex(sess *Session, req Request, kind index.Kind, unique bool) Reply {
	fields := make([]document.Path, len(req.Fields))
	for i, f := range req.Fields {
		fields[i] = document.ParsePath(f)
	}
	name := req.IndexName
	if name == "" {
		name = index.DefaultName(req.Fields, kind)
	}
	def := index.Def{Name: name, Kind: kind, Fields: fields, Unique: unique}

	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpCreateIndex, indexCmdPayload{Collection: req.Collection, Name: def.Name, Kind: string(kind), Fields: req.Fields, Unique: unique}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true, ID: def.Name}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	if err := c.CreateIndex(def); err != nil {
		return errReply(err)
	}
	return Reply{OK: true, ID: def.Name}
}

func (d *Dispatcher) handleDropIndex(sess *Session, req Request) Reply {
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpDropIndex, indexCmdPayload{Collection: req.Collection, Name: req.IndexName}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	if err := c.DropIndex(req.IndexName); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleListIndexes(req Request) Reply {
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	defs := c.ListIndexes()
	out := make([]IndexInfo, len(defs))
	for i, def := range defs {
		out[i] = IndexInfo{Name: def.Name, Kind: def.Kind, Fields: def.Fields, Unique: def.Unique}
	}
	return Reply{OK: true, Indexes: out}
}

func (d *Dispatcher) handleAggregate(req Request) Reply {
	c, err := d.openCollection(req.Collection)
	if err != nil {
		return errReply(err)
	}
	docs, err := c.Find(document.ObjectValue(document.NewObject()), 0, 0)
	if err != nil {
		return errReply(err)
	}
	out, err := aggregate.Run(docs, req.Pipeline)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Documents: out}
}

func (d *Dispatcher) handleCreateBucket(sess *Session, req Request) Reply {
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpCreateBucket, bucketCmdPayload{Bucket: req.Bucket}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	if _, err := d.blobs.CreateBucket(req.Bucket); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleDeleteBucket(sess *Session, req Request) Reply {
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpDeleteBucket, bucketCmdPayload{Bucket: req.Bucket}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	if err := d.blobs.DeleteBucket(req.Bucket); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleListBuckets() Reply {
	names, err := d.blobs.ListBuckets()
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, Buckets: names}
}

func (d *Dispatcher) handlePutObject(sess *Session, req Request) Reply {
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return errReply(oxierr.Wrap(oxierr.BadRequest, err, "decode base64 object data"))
	}
	if d.node != nil {
		result, err := d.node.Apply(consensus.OpPutObject, putObjectCmdPayload{Bucket: req.Bucket, Key: req.Key, ContentType: req.ContentType, Data: req.Data, Metadata: req.Metadata}, applyTimeout)
		if err != nil {
			return errReply(err)
		}
		meta, _ := result.(blob.ObjectMeta)
		return Reply{OK: true, ObjectMeta: &ObjectInfo{Key: meta.Key, ContentType: meta.ContentType, Metadata: meta.Metadata, Size: meta.Size}}
	}
	b, err := d.blobs.Bucket(req.Bucket)
	if err != nil {
		return errReply(err)
	}
	meta, err := b.Put(req.Key, req.ContentType, data, req.Metadata)
	if err != nil {
		return errReply(err)
	}
	return Reply{OK: true, ObjectMeta: &ObjectInfo{Key: meta.Key, ContentType: meta.ContentType, Metadata: meta.Metadata, Size: meta.Size}}
}

func (d *Dispatcher) handleGetObject(req Request) Reply {
	b, err := d.blobs.Bucket(req.Bucket)
	if err != nil {
		return errReply(err)
	}
	data, meta, found, err := b.Get(req.Key)
	if err != nil {
		return errReply(err)
	}
	if !found {
		return Reply{OK: true, Found: false}
	}
	return Reply{
		OK:         true,
		Found:      true,
		ObjectData: base64.StdEncoding.EncodeToString(data),
		ObjectMeta: &ObjectInfo{Key: meta.Key, ContentType: meta.ContentType, Metadata: meta.Metadata, Size: meta.Size},
	}
}

func (d *Dispatcher) handleHeadObject(req Request) Reply {
	b, err := d.blobs.Bucket(req.Bucket)
	if err != nil {
		return errReply(err)
	}
	meta, found := b.Head(req.Key)
	if !found {
		return Reply{OK: true, Found: false}
	}
	return Reply{OK: true, Found: true, ObjectMeta: &ObjectInfo{Key: meta.Key, ContentType: meta.ContentType, Metadata: meta.Metadata, Size: meta.Size}}
}

func (d *Dispatcher) handleDeleteObject(sess *Session, req Request) Reply {
	if d.node != nil {
		if _, err := d.node.Apply(consensus.OpDeleteObject, deleteObjectCmdPayload{Bucket: req.Bucket, Key: req.Key}, applyTimeout); err != nil {
			return errReply(err)
		}
		return Reply{OK: true}
	}
	b, err := d.blobs.Bucket(req.Bucket)
	if err != nil {
		return errReply(err)
	}
	if err := b.Delete(req.Key); err != nil {
		return errReply(err)
	}
	return Reply{OK: true}
}

func (d *Dispatcher) handleListObjects(req Request) Reply {
	b, err := d.blobs.Bucket(req.Bucket)
	if err != nil {
		return errReply(err)
	}
	metas := b.List()
	out := make([]ObjectInfo, len(metas))
	for i, m := range metas {
		out[i] = ObjectInfo{Key: m.Key, ContentType: m.ContentType, Metadata: m.Metadata, Size: m.Size}
	}
	return Reply{OK: true, Objects: out}
}

func (d *Dispatcher) handleSQL(req Request) Reply {
	q, err := sqlsubset.Parse(req.SQL)
	if err != nil {
		return errReply(err)
	}
	c, err := d.openCollection(q.Collection)
	if err != nil {
		return errReply(err)
	}
	limit := 0
	if q.HasLimit {
		limit = q.Limit
	}
	filter := q.Filter
	if filter.IsNull() {
		filter = document.ObjectValue(document.NewObject())
	}
	docs, err := c.Find(filter, limit, 0)
	if err != nil {
		return errReply(err)
	}
	if !q.Projection.IsNull() {
		projected := make([]document.Value, 0, len(docs))
		for _, doc := range docs {
			p, err := query.Project(doc, q.Projection)
			if err != nil {
				return errReply(err)
			}
			projected = append(projected, p)
		}
		docs = projected
	}
	return Reply{OK: true, Documents: docs}
}

// consensus command payload shapes, mirrored here (rather than imported
// from pkg/consensus) since the dispatcher only needs to marshal them
// into a Node.Apply call, not unmarshal or validate them further.
type insertCmdPayload struct {
	Collection string         `json:"collection"`
	Document   document.Value `json:"document"`
}
type insertManyCmdPayload struct {
	Collection string           `json:"collection"`
	Documents  []document.Value `json:"documents"`
}
type filterUpdateCmdPayload struct {
	Collection string         `json:"collection"`
	Filter     document.Value `json:"filter"`
	Update     document.Value `json:"update,omitempty"`
}
type collectionCmdPayload struct {
	Collection string `json:"collection"`
}
type indexCmdPayload struct {
	Collection string   `json:"collection"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Fields     []string `json:"fields"`
	Unique     bool     `json:"unique"`
}
type bucketCmdPayload struct {
	Bucket string `json:"bucket"`
}
type putObjectCmdPayload struct {
	Bucket      string            `json:"bucket"`
	Key         string            `json:"key"`
	ContentType string            `json:"content_type"`
	Data        string            `json:"data"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
type deleteObjectCmdPayload struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}
