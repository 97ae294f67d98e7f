package client

import (
	"crypto/hmac"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/pbkdf2"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/dispatcher"
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
	"github.com/oxidb/oxidb/pkg/transport"
)

// DefaultDialTimeout bounds how long Dial waits for the TCP connection
// and, when configured, the TLS handshake.
const DefaultDialTimeout = 10 * time.Second

// Client wraps one framed connection to an oxidb server and issues
// requests synchronously. It is not safe for concurrent use by multiple
// goroutines: like the teacher's gRPC client wraps one grpc.ClientConn,
// one Client wraps one transport.Conn and one logical session, and the
// wire protocol has no request multiplexing.
type Client struct {
	conn *transport.Conn
}

// Dial opens a plain TCP connection to addr and wraps it for framed I/O.
func Dial(addr string) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, DefaultDialTimeout)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "dial %s", addr)
	}
	return &Client{conn: transport.NewConn(nc)}, nil
}

// DialTLS opens a TLS connection to addr using cfg, negotiating the
// handshake eagerly before returning (this protocol has no STARTTLS).
func DialTLS(addr string, cfg *tls.Config) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, DefaultDialTimeout)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "dial %s", addr)
	}
	tlsConn := tls.Client(nc, cfg)
	if err := tlsConn.Handshake(); err != nil {
		nc.Close()
		return nil, oxierr.Wrap(oxierr.IOError, err, "TLS handshake with %s", addr)
	}
	return &Client{conn: transport.NewConn(tlsConn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call marshals req, sends it as one frame, reads the reply frame, and
// unmarshals it. A reply with OK false surfaces as a BadRequest error
// carrying the server's message; callers that need the reply fields on
// failure (none currently do) should call roundTrip directly.
func (c *Client) call(req dispatcher.Request) (dispatcher.Reply, error) {
	reply, err := c.roundTrip(req)
	if err != nil {
		return reply, err
	}
	if !reply.OK {
		return reply, oxierr.New(oxierr.BadRequest, "%s", reply.Error)
	}
	return reply, nil
}

func (c *Client) roundTrip(req dispatcher.Request) (dispatcher.Reply, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return dispatcher.Reply{}, oxierr.Wrap(oxierr.Internal, err, "marshal request")
	}
	if err := c.conn.WriteFrame(payload); err != nil {
		return dispatcher.Reply{}, oxierr.Wrap(oxierr.IOError, err, "write request frame")
	}
	raw, err := c.conn.ReadFrame()
	if err != nil {
		return dispatcher.Reply{}, oxierr.Wrap(oxierr.IOError, err, "read reply frame")
	}
	var reply dispatcher.Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return dispatcher.Reply{}, oxierr.Wrap(oxierr.Internal, err, "unmarshal reply")
	}
	return reply, nil
}

// Ping checks liveness of the connection and server.
func (c *Client) Ping() error {
	_, err := c.call(dispatcher.Request{Cmd: "ping"})
	return err
}

// Authenticate runs the full SCRAM-SHA-256 handshake for user/password
// over auth_start and auth_continue, verifying the server's signature
// before returning. Every subsequent call on c runs as user until the
// connection closes.
func (c *Client) Authenticate(user, password string) error {
	clientFirst := randomNonce()
	startReply, err := c.call(dispatcher.Request{Cmd: "auth_start", User: user, ClientFirst: clientFirst})
	if err != nil {
		return err
	}

	salt, err := base64.StdEncoding.DecodeString(startReply.Salt)
	if err != nil {
		return oxierr.Wrap(oxierr.Internal, err, "decode server salt")
	}
	saltedPassword := pbkdf2.Key([]byte(password), salt, startReply.Iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	authMessage := clientFirst + "," + startReply.Salt + ":" + strconv.Itoa(startReply.Iterations) + ":" + startReply.Nonce + "," + startReply.Nonce
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	proof := xorBytes(clientKey, clientSignature)

	continueReply, err := c.call(dispatcher.Request{
		Cmd:         "auth_continue",
		ClientFinal: startReply.Nonce,
		ClientProof: base64.StdEncoding.EncodeToString(proof),
	})
	if err != nil {
		return err
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	expectedSignature := hmacSHA256(serverKey, []byte(authMessage))
	gotSignature, err := base64.StdEncoding.DecodeString(continueReply.ServerSignature)
	if err != nil {
		return oxierr.Wrap(oxierr.Internal, err, "decode server signature")
	}
	if subtle.ConstantTimeCompare(expectedSignature, gotSignature) != 1 {
		return oxierr.New(oxierr.AuthFailed, "server signature mismatch, possible MITM")
	}
	return nil
}

func randomNonce() string {
	buf := make([]byte, 18)
	if _, err := cryptorand.Read(buf); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Insert inserts doc into collection and returns its assigned id.
func (c *Client) Insert(collection string, doc document.Value) (string, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "insert", Collection: collection, Document: doc})
	if err != nil {
		return "", err
	}
	return reply.ID, nil
}

// InsertMany inserts docs into collection and returns their assigned ids.
func (c *Client) InsertMany(collection string, docs []document.Value) ([]string, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "insert_many", Collection: collection, Documents: docs})
	if err != nil {
		return nil, err
	}
	return reply.IDs, nil
}

// Find returns every document in collection matching filter.
func (c *Client) Find(collection string, filter document.Value) ([]document.Value, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "find", Collection: collection, Filter: filter})
	if err != nil {
		return nil, err
	}
	return reply.Documents, nil
}

// FindOne returns the first document in collection matching filter.
func (c *Client) FindOne(collection string, filter document.Value) (document.Value, bool, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "find_one", Collection: collection, Filter: filter})
	if err != nil {
		return document.Value{}, false, err
	}
	return reply.Document, reply.Found, nil
}

// Count returns the number of documents in collection matching filter.
func (c *Client) Count(collection string, filter document.Value) (int, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "count", Collection: collection, Filter: filter})
	if err != nil {
		return 0, err
	}
	return reply.Count, nil
}

// Update applies update to every document in collection matching filter
// and returns the number of documents modified.
func (c *Client) Update(collection string, filter, update document.Value) (int, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "update", Collection: collection, Filter: filter, Update: update})
	if err != nil {
		return 0, err
	}
	return reply.Count, nil
}

// Delete removes every document in collection matching filter and
// returns the number of documents removed.
func (c *Client) Delete(collection string, filter document.Value) (int, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "delete", Collection: collection, Filter: filter})
	if err != nil {
		return 0, err
	}
	return reply.Count, nil
}

// Aggregate runs pipeline against collection and returns the resulting
// documents.
func (c *Client) Aggregate(collection string, pipeline document.Value) ([]document.Value, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "aggregate", Collection: collection, Pipeline: pipeline})
	if err != nil {
		return nil, err
	}
	return reply.Documents, nil
}

// CreateCollection creates an empty collection.
func (c *Client) CreateCollection(name string) error {
	_, err := c.call(dispatcher.Request{Cmd: "create_collection", Collection: name})
	return err
}

// DropCollection removes a collection and all of its documents.
func (c *Client) DropCollection(name string) error {
	_, err := c.call(dispatcher.Request{Cmd: "drop_collection", Collection: name})
	return err
}

// ListCollections returns the names of every collection on the server.
func (c *Client) ListCollections() ([]string, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "list_collections"})
	if err != nil {
		return nil, err
	}
	return reply.Collections, nil
}

// Compact reclaims space in collection's on-disk log.
func (c *Client) Compact(collection string) error {
	_, err := c.call(dispatcher.Request{Cmd: "compact", Collection: collection})
	return err
}

// CreateIndex creates a single-field, non-unique index.
func (c *Client) CreateIndex(collection, name, field string) error {
	_, err := c.call(dispatcher.Request{Cmd: "create_index", Collection: collection, IndexName: name, Fields: []string{field}})
	return err
}

// CreateUniqueIndex creates a single-field unique index.
func (c *Client) CreateUniqueIndex(collection, name, field string) error {
	_, err := c.call(dispatcher.Request{Cmd: "create_unique_index", Collection: collection, IndexName: name, Fields: []string{field}, Unique: true})
	return err
}

// CreateCompositeIndex creates a multi-field index over fields in order.
func (c *Client) CreateCompositeIndex(collection, name string, fields []string, unique bool) error {
	_, err := c.call(dispatcher.Request{Cmd: "create_composite_index", Collection: collection, IndexName: name, Fields: fields, Unique: unique})
	return err
}

// CreateTextIndex creates a full-text index over field.
func (c *Client) CreateTextIndex(collection, name, field string) error {
	_, err := c.call(dispatcher.Request{Cmd: "create_text_index", Collection: collection, IndexName: name, Fields: []string{field}})
	return err
}

// DropIndex removes an index by name.
func (c *Client) DropIndex(collection, name string) error {
	_, err := c.call(dispatcher.Request{Cmd: "drop_index", Collection: collection, IndexName: name})
	return err
}

// ListIndexes returns every index defined on collection.
func (c *Client) ListIndexes(collection string) ([]dispatcher.IndexInfo, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "list_indexes", Collection: collection})
	if err != nil {
		return nil, err
	}
	return reply.Indexes, nil
}

// BeginTx opens a buffered transaction on this connection. Writes issued
// afterward are staged until CommitTx or RollbackTx.
func (c *Client) BeginTx() error {
	_, err := c.call(dispatcher.Request{Cmd: "begin_tx"})
	return err
}

// CommitTx applies every buffered write and returns the ids assigned to
// buffered inserts, in submission order.
func (c *Client) CommitTx() ([]string, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "commit_tx"})
	if err != nil {
		return nil, err
	}
	return reply.IDs, nil
}

// RollbackTx discards every buffered write without applying it.
func (c *Client) RollbackTx() error {
	_, err := c.call(dispatcher.Request{Cmd: "rollback_tx"})
	return err
}

// CreateBucket creates an empty blob bucket.
func (c *Client) CreateBucket(name string) error {
	_, err := c.call(dispatcher.Request{Cmd: "create_bucket", Bucket: name})
	return err
}

// DeleteBucket removes a bucket and every object in it.
func (c *Client) DeleteBucket(name string) error {
	_, err := c.call(dispatcher.Request{Cmd: "delete_bucket", Bucket: name})
	return err
}

// ListBuckets returns the names of every bucket on the server.
func (c *Client) ListBuckets() ([]string, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "list_buckets"})
	if err != nil {
		return nil, err
	}
	return reply.Buckets, nil
}

// PutObject stores data under key in bucket. data is sent base64-encoded
// inline, per the wire protocol's binary payload convention.
func (c *Client) PutObject(bucket, key, contentType string, data []byte, metadata map[string]string) error {
	_, err := c.call(dispatcher.Request{
		Cmd:         "put_object",
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
		Metadata:    metadata,
	})
	return err
}

// GetObject retrieves the bytes stored under key in bucket.
func (c *Client) GetObject(bucket, key string) ([]byte, bool, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "get_object", Bucket: bucket, Key: key})
	if err != nil {
		return nil, false, err
	}
	if !reply.Found {
		return nil, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(reply.ObjectData)
	if err != nil {
		return nil, false, oxierr.Wrap(oxierr.Internal, err, "decode object data")
	}
	return data, true, nil
}

// HeadObject retrieves metadata for key in bucket without its bytes.
func (c *Client) HeadObject(bucket, key string) (*dispatcher.ObjectInfo, bool, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "head_object", Bucket: bucket, Key: key})
	if err != nil {
		return nil, false, err
	}
	return reply.ObjectMeta, reply.Found, nil
}

// DeleteObject removes key from bucket.
func (c *Client) DeleteObject(bucket, key string) error {
	_, err := c.call(dispatcher.Request{Cmd: "delete_object", Bucket: bucket, Key: key})
	return err
}

// ListObjects returns metadata for every object in bucket.
func (c *Client) ListObjects(bucket string) ([]dispatcher.ObjectInfo, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "list_objects", Bucket: bucket})
	if err != nil {
		return nil, err
	}
	return reply.Objects, nil
}

// SQL runs a SELECT statement against the hand-rolled SQL subset and
// returns the projected rows.
func (c *Client) SQL(query string) ([]document.Value, error) {
	reply, err := c.call(dispatcher.Request{Cmd: "sql", SQL: query})
	if err != nil {
		return nil, err
	}
	return reply.Documents, nil
}
