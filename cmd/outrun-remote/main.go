// Command outrun-remote exercises session.Mount end to end from flags. It
// intentionally does not parse the full outrun CLI surface (SSH
// orchestration, chroot setup, environment propagation are all external
// collaborators per SPEC_FULL.md §1) - this exists only to drive the core
// from a real process for manual testing.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/outrungo/outrungo/internal/cacheengine"
	"github.com/outrungo/outrungo/internal/cachemode"
	"github.com/outrungo/outrungo/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("outrun-remote")
	}
}

func newRootCmd() *cobra.Command {
	var (
		fsEndpoint    string
		cacheEndpoint string
		envEndpoint   string
		mountPoint    string
		machineID     string
		cacheDir      string
		indexFormat   = cachemode.IndexFormatBolt
		maxEntries    int
		maxBytes      int64
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "outrun-remote",
		Short: "mount the outrun remote file system",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := session.ReadHandshakeToken(os.Stdin)
			if err != nil {
				return err
			}

			sess, err := session.Mount(session.Config{
				Token:               token,
				EnvironmentEndpoint: envEndpoint,
				FilesystemEndpoint:  fsEndpoint,
				CacheEndpoint:       cacheEndpoint,
				MountPoint:          mountPoint,
				MachineID:           machineID,
				CacheDir:            cacheDir,
				IndexFormat:         indexFormat,
				Budget:              cacheengine.Budget{Entries: maxEntries, Bytes: maxBytes},
				Workers:             workers,
				OnMounted: func() {
					fmt.Fprintln(os.Stdout, "mounted")
				},
			})
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigCh:
			case err := <-sess.Err():
				logrus.WithError(err).Error("session failed")
			}
			return sess.Unmount()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&fsEndpoint, "fs-endpoint", "127.0.0.1:0", "loopback address of the local file system RPC service")
	flags.StringVar(&cacheEndpoint, "cache-endpoint", "127.0.0.1:0", "loopback address of the local cache RPC service")
	flags.StringVar(&envEndpoint, "env-endpoint", "127.0.0.1:0", "loopback address of the local environment RPC service")
	flags.StringVar(&mountPoint, "mount-point", "", "directory to mount the remote file system at")
	flags.StringVar(&machineID, "machine-id", "", "local machine identifier (from get_app_specific_machine_id)")
	flags.StringVar(&cacheDir, "cache-dir", "", "durable cache directory")
	flags.Var(&indexFormatValue{&indexFormat}, "index-format", "cache index on-disk format (bolt or json)")
	flags.IntVar(&maxEntries, "max-entries", 10000, "maximum cache entry count retained at save")
	flags.Int64Var(&maxBytes, "max-bytes", 1<<30, "maximum cached content bytes retained at save")
	flags.IntVar(&workers, "workers", 8, "RPC worker pool size")
	_ = cmd.MarkFlagRequired("mount-point")
	_ = cmd.MarkFlagRequired("machine-id")
	_ = cmd.MarkFlagRequired("cache-dir")

	return cmd
}

type indexFormatValue struct {
	f *cachemode.IndexFormat
}

func (v *indexFormatValue) String() string   { return v.f.String() }
func (v *indexFormatValue) Set(s string) error { return v.f.Set(s) }
func (v *indexFormatValue) Type() string     { return v.f.Type() }

var _ pflag.Value = (*indexFormatValue)(nil)
