// Package dispatcher routes decoded wire requests through the session
// gate, the authorization gate, and the engine itself: frame decoder →
// dispatcher → session gate → authorization gate → (planner → storage ±
// index) → reply encoder, with replicated write commands detouring
// through the consensus adapter before storage is mutated.
package dispatcher

import (
	"github.com/oxidb/oxidb/pkg/document"
)

// Request is the decoded wire request. Every command carries Cmd;
// the remaining fields are populated only as each command needs them.
type Request struct {
	Cmd string `json:"cmd"`

	Collection string          `json:"collection,omitempty"`
	Document   document.Value  `json:"document,omitempty"`
	Documents  []document.Value `json:"documents,omitempty"`
	Filter     document.Value  `json:"filter,omitempty"`
	Update     document.Value  `json:"update,omitempty"`
	Pipeline   document.Value  `json:"pipeline,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Skip       int             `json:"skip,omitempty"`

	IndexName string   `json:"index_name,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Unique    bool     `json:"unique,omitempty"`

	Bucket      string            `json:"bucket,omitempty"`
	Key         string            `json:"key,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Data        string            `json:"data,omitempty"` // base64, per §6 "binary payloads ... base64-encoded inline"
	Metadata    map[string]string `json:"metadata,omitempty"`

	SQL string `json:"sql,omitempty"`

	User        string `json:"user,omitempty"`
	Password    string `json:"password,omitempty"`
	ClientFirst string `json:"client_first,omitempty"`
	ClientFinal string `json:"client_final,omitempty"`
	ClientProof string `json:"client_proof,omitempty"`

	TxID string `json:"tx_id,omitempty"`
}

// Reply is the wire response. Every reply carries OK; Error is set only
// when OK is false. The remaining fields are populated per command.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	ID        string            `json:"id,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
	Count     int               `json:"count,omitempty"`
	Found     bool              `json:"found,omitempty"`
	Document  document.Value    `json:"document,omitempty"`
	Documents []document.Value `json:"documents,omitempty"`

	Collections []string `json:"collections,omitempty"`
	Indexes     []IndexInfo `json:"indexes,omitempty"`

	Buckets     []string     `json:"buckets,omitempty"`
	Objects     []ObjectInfo `json:"objects,omitempty"`
	ObjectData  string       `json:"object_data,omitempty"` // base64
	ObjectMeta  *ObjectInfo  `json:"object_meta,omitempty"`

	Salt            string `json:"salt,omitempty"`
	Iterations      int    `json:"iterations,omitempty"`
	Nonce           string `json:"nonce,omitempty"`
	ServerSignature string `json:"server_signature,omitempty"`
	Role            string `json:"role,omitempty"`

	TxID string `json:"tx_id,omitempty"`
}

// IndexInfo mirrors storage.IndexDef for wire replies without coupling
// callers to the storage package's persisted-record shape.
type IndexInfo struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

// ObjectInfo mirrors blob.ObjectMeta for wire replies.
type ObjectInfo struct {
	Key         string            `json:"key"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
}

func errReply(err error) Reply {
	return Reply{OK: false, Error: err.Error()}
}
