package auth

// Role is one of the three roles in the strict hierarchy Admin ⊇
// ReadWrite ⊇ Read on the read intersection (spec.md §4.8).
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReadWrite Role = "read_write"
	RoleRead      Role = "read"
)

// readWriteCommands is every command a ReadWrite session may run, beyond
// what Read already permits: user-data CRUD, index creation (not drop),
// transactions, and blob/bucket I/O. Drop of a collection, drop of an
// index, and user administration are deliberately absent — those fall
// through to Admin-only, matching spec.md §4.8.
var readWriteCommands = map[string]bool{
	"ping":                 true,
	"insert":               true,
	"insert_many":          true,
	"find":                 true,
	"find_one":             true,
	"update":               true,
	"delete":               true,
	"count":                true,
	"create_index":         true,
	"create_unique_index":  true,
	"create_composite_index": true,
	"create_text_index":    true,
	"create_collection":    true,
	"list_collections":     true,
	"list_indexes":         true,
	"compact":              true,
	"aggregate":            true,
	"begin_tx":             true,
	"commit_tx":            true,
	"rollback_tx":          true,
	"create_bucket":        true,
	"delete_bucket":        true,
	"put_object":           true,
	"get_object":           true,
	"head_object":          true,
	"delete_object":        true,
	"list_objects":         true,
	"list_buckets":         true,
	"search":               true,
	"sql":                  true,
}

// readCommands is every command a Read session may run.
var readCommands = map[string]bool{
	"ping":             true,
	"find":             true,
	"find_one":         true,
	"count":             true,
	"aggregate":        true,
	"list_collections": true,
	"list_buckets":     true,
	"list_objects":     true,
	"get_object":       true,
	"head_object":      true,
	"search":           true,
	"list_indexes":     true,
}

// preAuthCommands are permitted on an unauthenticated session
// (spec.md §4.7: "only ping, auth_start, and auth_continue are permitted").
var preAuthCommands = map[string]bool{
	"ping":          true,
	"auth_start":    true,
	"auth_continue": true,
}

// IsPreAuth reports whether cmd may run before authentication.
func IsPreAuth(cmd string) bool { return preAuthCommands[cmd] }

// IsPermitted reports whether role may run cmd (spec.md §4.8). Admin
// always passes; ReadWrite and Read are each defined by an explicit
// command allow-list so that adding a new command defaults to
// Admin-only until explicitly granted — the safe default.
func IsPermitted(role Role, cmd string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReadWrite:
		return readWriteCommands[cmd] || readCommands[cmd]
	case RoleRead:
		return readCommands[cmd]
	default:
		return false
	}
}
