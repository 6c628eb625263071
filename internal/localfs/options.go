package localfs

// ListOptions configures ListDirectory.
type ListOptions struct {
	// IncludeHidden includes files and directories starting with a dot.
	IncludeHidden bool

	// FollowSymlinks lists symlinks as their targets. Without it symlinks
	// are skipped, which keeps link cycles out of recursive reads.
	FollowSymlinks bool
}
