package sync

// dirID identifies a directory independently of the path used to reach it.
// Where the platform exposes device and inode numbers those are used.
// Otherwise the fully resolved path stands in.
type dirID struct {
	dev, ino uint64
	path     string
}

func identify(abs string) (dirID, error) {
	fi, err := fs.Stat(abs)
	if err != nil {
		return dirID{}, err
	}
	if dev, ino, ok := deviceAndInode(fi); ok {
		return dirID{dev: dev, ino: ino}, nil
	}

	resolved, err := evalSymlinks(abs)
	if err != nil {
		return dirID{}, err
	}
	return dirID{path: resolved}, nil
}
