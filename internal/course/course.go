package course

// ContentKind categorizes what a tracked file represents on the remote side.
type ContentKind string

const (
	// KindContent is a regular course file (resource, folder content, url module).
	KindContent ContentKind = "content"

	// KindDescription is a module or section description, mirrored as a Markdown file.
	KindDescription ContentKind = "description"

	// KindSubmission is a file attached to the user's own assignment submission.
	KindSubmission ContentKind = "submission"

	// KindDatabase is a file attached to a database-activity entry.
	KindDatabase ContentKind = "database"
)

// File is one remote file as seen in a snapshot, or one record of the last
// committed state. The same shape serves both sides of a diff.
type File struct {
	// Key is the remote service's stable reference for this file
	// (module kind, module id and remote path combined). It survives
	// renames and edits; a new key means a logically different file.
	Key string

	// ContentHash fingerprints the content (remote metadata for binary
	// files, the text itself for descriptions). Used to detect in-place
	// edits and to re-pair files whose key was reissued.
	ContentHash string

	// Path is the file's location in the local mirror, relative to the
	// storage directory, using forward slashes.
	Path string

	// Kind is the content category, used by the change filter.
	Kind ContentKind

	// Size is the remote file size in bytes (length of the text for
	// descriptions and url targets).
	Size int64

	// ModifiedAt is the remote modification time (Unix seconds).
	ModifiedAt int64

	// FileURL is the webservice download URL. Empty for descriptions.
	FileURL string

	// Text carries the content for files written locally without a
	// download: description Markdown and url-module targets. Not persisted.
	Text string

	// ModuleType is the Moodle module kind (resource, folder, url, assign,
	// data, ...). "url" files are written as shortcuts instead of downloaded.
	ModuleType string

	// ModuleName is the display name of the owning module.
	ModuleName string
}

// Course is one remote course with its files in fetch order.
type Course struct {
	// ID is the remote course id, stable across runs.
	ID int64

	// FullName is the course display name (after any configured override).
	FullName string

	// Files is the ordered file list. Order follows the remote section and
	// module order, so it is stable between runs.
	Files []File
}
