package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/agentic-research/lsf/internal/mount"
	"github.com/spf13/cobra"
	"github.com/winfsp/cgofuse/fuse"
)

var (
	mountQuery   string
	mountBackend string
)

var mountCmd = &cobra.Command{
	Use:   "mount --query <expr> <root> <mountpoint>",
	Short: "Mount a query's live result set as a directory of symlinks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mountQuery == "" {
			return fmt.Errorf("--query is required")
		}
		mountPoint := args[1]
		if err := os.MkdirAll(mountPoint, 0o755); err != nil {
			return fmt.Errorf("create mount point %s: %w", mountPoint, err)
		}

		e, err := newEngine(cmd.Context(), args[0], refresh)
		if err != nil {
			return err
		}
		defer e.close()

		expr, err := compileQuery(mountQuery)
		if err != nil {
			return err
		}
		entries, _, err := mount.BuildEntries(e.hot, expr, queryOptions(e), e.token())
		if err != nil {
			return err
		}
		fmt.Printf("Query matched %d entries\n", len(entries))

		switch mountBackend {
		case "nfs":
			return mountNFS(entries, mountPoint)
		case "fuse":
			return mountFUSE(entries, mountPoint)
		default:
			return fmt.Errorf("unknown backend %q (want nfs or fuse)", mountBackend)
		}
	},
}

func mountNFS(entries []mount.Entry, mountPoint string) error {
	fs := mount.NewResultNFS(entries)
	srv, err := mount.NewServer(fs)
	if err != nil {
		return fmt.Errorf("start NFS server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	fmt.Printf("Mounting lsf results at %s (NFS on localhost:%d)...\n", mountPoint, srv.Port())
	if err := mount.Mount(srv.Port(), mountPoint); err != nil {
		return err
	}
	fmt.Println("Mounted. Press Ctrl-C to unmount.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Printf("\nUnmounting %s...\n", mountPoint)
	if err := mount.Unmount(mountPoint); err != nil {
		fmt.Printf("Warning: unmount failed: %v\n", err)
		fmt.Printf("Run manually: sudo umount %s\n", mountPoint)
	}
	return nil
}

func mountFUSE(entries []mount.Entry, mountPoint string) error {
	fs := mount.NewResultFS(entries)
	host := fuse.NewFileSystemHost(fs)

	fmt.Printf("Mounting lsf results at %s (cgofuse)...\n", mountPoint)
	opts := []string{
		"-o", "ro",
		"-o", fmt.Sprintf("uid=%d", os.Getuid()),
		"-o", fmt.Sprintf("gid=%d", os.Getgid()),
		"-o", "fsname=lsf",
		"-o", "subtype=lsf",
	}
	if runtime.GOOS == "darwin" {
		opts = append(opts, "-o", "nobrowse")
	}
	if !host.Mount(mountPoint, opts) {
		return fmt.Errorf("mount failed")
	}
	return nil
}

func init() {
	mountCmd.Flags().StringVar(&mountQuery, "query", "", "Query whose results populate the mount")
	mountCmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cache and re-walk the root")

	defaultBackend := "fuse"
	if runtime.GOOS == "darwin" {
		defaultBackend = "nfs"
	}
	mountCmd.Flags().StringVar(&mountBackend, "backend", defaultBackend, "Mount backend: nfs or fuse")

	rootCmd.AddCommand(mountCmd)
}
