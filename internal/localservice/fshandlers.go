package localservice

import (
	"github.com/outrungo/outrungo/internal/localfs"
	"github.com/outrungo/outrungo/internal/rpc"
	"github.com/outrungo/outrungo/internal/wire"
)

func registerFSHandlers(server *rpc.Server, fs localfs.Service) {
	server.Register(rpc.MethodGetAttr, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		attr, link, err := fs.GetAttr(path)
		if err != nil {
			return nil, err
		}
		var linkStr string
		if link != nil {
			linkStr = *link
		}
		return []any{wire.WrapAttributes(attr), link != nil, linkStr}, nil
	})

	server.Register(rpc.MethodReadlink, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		return fs.Readlink(path)
	})

	server.Register(rpc.MethodOpen, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		flags := argInt(args, 1)
		mode := uint32(argInt(args, 2))
		return fs.Open(path, flags, mode)
	})

	server.Register(rpc.MethodRead, func(args []any) (any, error) {
		fd := argInt(args, 0)
		size := argInt(args, 1)
		offset := int64(argInt(args, 2))
		buf := make([]byte, size)
		n, err := fs.Read(fd, buf, offset)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	})

	server.Register(rpc.MethodWrite, func(args []any) (any, error) {
		fd := argInt(args, 0)
		data, _ := args[1].([]byte)
		offset := int64(argInt(args, 2))
		return fs.Write(fd, data, offset)
	})

	server.Register(rpc.MethodRelease, func(args []any) (any, error) {
		fd := argInt(args, 0)
		return nil, fs.Release(fd)
	})

	server.Register(rpc.MethodFlush, func(args []any) (any, error) {
		fd := argInt(args, 0)
		return nil, fs.Flush(fd)
	})

	server.Register(rpc.MethodTruncate, func(args []any) (any, error) {
		path, _ := args[0].(string)
		fd := argInt(args, 1)
		size := int64(argInt(args, 2))
		return nil, fs.Truncate(path, fd, size)
	})

	server.Register(rpc.MethodChmod, func(args []any) (any, error) {
		path, _ := args[0].(string)
		fd := argInt(args, 1)
		mode := uint32(argInt(args, 2))
		return nil, fs.Chmod(path, fd, mode)
	})

	server.Register(rpc.MethodChown, func(args []any) (any, error) {
		path, _ := args[0].(string)
		fd := argInt(args, 1)
		uid := argInt(args, 2)
		gid := argInt(args, 3)
		return nil, fs.Chown(path, fd, uid, gid)
	})

	server.Register(rpc.MethodUtimens, func(args []any) (any, error) {
		path, _ := args[0].(string)
		fd := argInt(args, 1)
		atime := int64(argInt(args, 2))
		mtime := int64(argInt(args, 3))
		return nil, fs.Utimens(path, fd, atime, mtime)
	})

	server.Register(rpc.MethodMkdir, func(args []any) (any, error) {
		path, _ := args[0].(string)
		mode := uint32(argInt(args, 1))
		return nil, fs.Mkdir(path, mode)
	})

	server.Register(rpc.MethodRmdir, func(args []any) (any, error) {
		path, _ := args[0].(string)
		return nil, fs.Rmdir(path)
	})

	server.Register(rpc.MethodUnlink, func(args []any) (any, error) {
		path, _ := args[0].(string)
		return nil, fs.Unlink(path)
	})

	server.Register(rpc.MethodRename, func(args []any) (any, error) {
		oldpath, _ := args[0].(string)
		newpath, _ := args[1].(string)
		return nil, fs.Rename(oldpath, newpath)
	})

	server.Register(rpc.MethodSymlink, func(args []any) (any, error) {
		target, _ := args[0].(string)
		linkpath, _ := args[1].(string)
		return nil, fs.Symlink(target, linkpath)
	})

	server.Register(rpc.MethodMknod, func(args []any) (any, error) {
		path, _ := args[0].(string)
		mode := uint32(argInt(args, 1))
		dev := uint64(argInt(args, 2))
		return nil, fs.Mknod(path, mode, dev)
	})

	server.Register(rpc.MethodReaddir, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		return fs.Readdir(path)
	})

	server.Register(rpc.MethodLink, func(args []any) (any, error) {
		oldpath, _ := args[0].(string)
		newpath, _ := args[1].(string)
		return nil, fs.Link(oldpath, newpath)
	})

	server.Register(rpc.MethodFsync, func(args []any) (any, error) {
		fd := argInt(args, 0)
		datasync, _ := args[1].(bool)
		return nil, fs.Fsync(fd, datasync)
	})

	server.Register(rpc.MethodStatfs, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		st, err := fs.Statfs(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"bsize":   int64(st.Bsize),
			"blocks":  int64(st.Blocks),
			"bfree":   int64(st.Bfree),
			"bavail":  int64(st.Bavail),
			"files":   int64(st.Files),
			"ffree":   int64(st.Ffree),
			"namelen": int64(st.Namelen),
		}, nil
	})
}

func argInt(args []any, i int) int {
	if i >= len(args) {
		return 0
	}
	switch n := args[i].(type) {
	case int64:
		return int(n)
	case int:
		return n
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
