package nametransform

const (
	// Permissions for dir.c9r and directory marker files
	//
	// It makes sense to have the directory id files group-readable so the
	// vault can be shared by several users from a network drive.
	//
	// Note that the master key file is still created with 0400 permissions so
	// the owner must explicitly chmod it to permit access.
	dirIDPerms = 0440

	// Permissions for name.c9s and .lng metadata files
	namePerms = 0400
)
