package rpc

// Method name constants shared by the local-side Server registration and
// the remote-side Client calls, replacing the original implementation's
// duck-typed "call any attribute on the service instance" dispatch with an
// explicit, statically known operation set.
const (
	MethodGetMetadata                  = "get_metadata"
	MethodGetChangedMetadata           = "get_changed_metadata"
	MethodReadFile                     = "readfile"
	MethodReadFileConditional          = "readfile_conditional"
	MethodGetMetadataPrefetch          = "get_metadata_prefetch"
	MethodReadFilePrefetch             = "readfile_prefetch"
	MethodMarkPreviouslyFetchedContent = "mark_previously_fetched_contents"
	MethodSetPrefetchablePaths         = "set_prefetchable_paths"
	MethodGetAppSpecificMachineID      = "get_app_specific_machine_id"

	MethodGetAttr   = "getattr"
	MethodReadlink  = "readlink"
	MethodOpen      = "open"
	MethodRead      = "read"
	MethodWrite     = "write"
	MethodRelease   = "release"
	MethodFlush     = "flush"
	MethodTruncate  = "truncate"
	MethodChmod     = "chmod"
	MethodChown     = "chown"
	MethodUtimens   = "utimens"
	MethodMkdir     = "mkdir"
	MethodRmdir     = "rmdir"
	MethodUnlink    = "unlink"
	MethodRename    = "rename"
	MethodSymlink   = "symlink"
	MethodMknod     = "mknod"
	MethodReaddir   = "readdir"
	MethodStatfs    = "statfs"
	MethodLink      = "link"
	MethodFsync     = "fsync"
)
