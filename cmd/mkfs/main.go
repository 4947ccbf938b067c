// Command mkfs formats a fresh disk image and optionally populates it
// from a host skeleton directory, adapted from the teacher's mkfs
// command (biscuit/src/mkfs/mkfs.go), rebuilt against this repository's
// own fs.Format/fs.Fs_t instead of ufs.Ufs_t.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"duskos/bdev"
	"duskos/defs"
	"duskos/dir"
	"duskos/fs"
	"duskos/ustr"
)

// Default image geometry: enough sectors for a modest skeleton tree.
const defaultSectors = 65536

// copydata reads the host file at src and appends its contents to dst
// within the mounted file system.
func copydata(src string, fsys *fs.Fs_t, root *dir.Dir_t, dst ustr.Ustr) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	ino, _, err := fsys.Open(root, dst)
	if err != nil {
		return err
	}
	defer fsys.Inodes.Close(ino)

	buf := make([]byte, 64*1024)
	pos := 0
	for {
		n, rerr := srcFile.Read(buf)
		if n > 0 {
			if _, werr := ino.WriteAt(buf[:n], pos); werr != nil {
				return werr
			}
			pos += n
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// addfiles walks skeldir on the host and replicates its contents into
// fsys.
func addfiles(fsys *fs.Fs_t, root *dir.Dir_t, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		rel = strings.TrimPrefix(rel, string(os.PathSeparator))
		if rel == "" {
			return nil
		}
		target := ustr.MkUstrRoot().ExtendStr(rel)

		if d.IsDir() {
			if _, err := fsys.Create(root, target, true); err != nil {
				fmt.Fprintf(os.Stderr, "mkfs: mkdir %s: %v\n", rel, err)
			}
			return nil
		}
		if _, err := fsys.Create(root, target, false); err != nil {
			fmt.Fprintf(os.Stderr, "mkfs: create %s: %v\n", rel, err)
			return nil
		}
		if err := copydata(path, fsys, root, target); err != nil {
			fmt.Fprintf(os.Stderr, "mkfs: copy %s: %v\n", rel, err)
		}
		return nil
	})
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: mkfs <output image> [skeleton dir]")
		os.Exit(1)
	}
	image := os.Args[1]

	disk, err := bdev.OpenFileDisk(image, defs.FILESYS, defaultSectors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}

	fsys, err := fs.Format(disk, 256)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: format: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) >= 3 {
		root, err := fsys.RootDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
			os.Exit(1)
		}
		if err := addfiles(fsys, root, os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		}
		root.Close()
	}

	if err := fsys.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: shutdown: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprint(os.Stderr, fsys.Cache.String())
	disk.Close()
}
