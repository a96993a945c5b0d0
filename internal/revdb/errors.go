package revdb

import "errors"

// Sentinel errors returned by Store methods. Callers classify with
// errors.Is; everything else collapses to a wrapped Internal error, matching
// the narrow taxonomy described in spec §7 and grounded on the teacher's
// internal/graph/errors.go classification style.
var (
	// ErrWorkspaceAlreadyExists is reserved for callers that enforce name
	// uniqueness on top of create_workspace (spec §4.1 notes create_workspace
	// itself does not reject duplicates).
	ErrWorkspaceAlreadyExists = errors.New("revdb: workspace already exists")

	// ErrWorkspaceNotFound is returned by DeleteWorkspace and Commit when no
	// live workspace row matches the given id.
	ErrWorkspaceNotFound = errors.New("revdb: workspace not found")

	// ErrNotFound is returned when the unified view resolves to nothing for
	// a point or directory query.
	ErrNotFound = errors.New("revdb: not found")

	// ErrEmptyPath is returned by GetOrCreateFilePath for a zero-length path.
	ErrEmptyPath = errors.New("revdb: path must not be empty")

	// ErrPermissionDenied is returned by callers layering write checks over
	// revdb (the Remote Server, the FUSE adapter) for writes targeting
	// trunk. revdb itself never returns it — trunk is read-only by
	// construction, there is no trunk write path to guard.
	ErrPermissionDenied = errors.New("revdb: permission denied")

	// ErrUnsupported is returned by callers for operations the spec
	// explicitly excludes (xattrs). revdb itself never returns it.
	ErrUnsupported = errors.New("revdb: unsupported operation")
)
